// Package audio renders the ringing tone through the system audio device.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/ebitengine/oto/v3"

	"alarm-delivery-backend/config"
)

// TonePlayer loops an alarm tone until stopped. The default tone is a
// synthesized beep pattern; a sound reference names a raw s16le mono PCM file
// in the configured tone directory.
type TonePlayer struct {
	sampleRate int
	toneDir    string

	ctxOnce sync.Once
	ctx     *oto.Context
	ready   bool
}

// NewTonePlayer creates a player. The audio device is opened lazily on the
// first Play call.
func NewTonePlayer(cfg *config.AudioConfig) *TonePlayer {
	return &TonePlayer{
		sampleRate: cfg.SampleRate,
		toneDir:    cfg.ToneDir,
	}
}

func (p *TonePlayer) initContext() {
	p.ctxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   p.sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			log.Printf("Failed to initialize audio context: %v", err)
			return
		}
		// Wait for the hardware audio device to be ready.
		<-readyChan
		p.ctx = ctx
		p.ready = true
		log.Println("Audio context initialized successfully")
	})
}

// Play starts looping the tone for the given sound reference and returns a
// stop function. The stop function is safe to call more than once.
func (p *TonePlayer) Play(soundRef string) (func(), error) {
	p.initContext()
	if !p.ready || p.ctx == nil {
		return func() {}, fmt.Errorf("audio context not ready")
	}

	data := p.toneData(soundRef)
	player := p.ctx.NewPlayer(newLoopReader(data))
	player.Play()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := player.Close(); err != nil {
				log.Printf("Failed to close audio player: %v", err)
			}
		})
	}
	return stop, nil
}

// toneData resolves a sound reference to PCM samples, falling back to the
// synthesized default tone.
func (p *TonePlayer) toneData(soundRef string) []byte {
	if soundRef != "" && p.toneDir != "" {
		path := filepath.Join(p.toneDir, filepath.Base(soundRef))
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return data
		}
		log.Printf("Tone %q not readable, using default tone", soundRef)
	}
	return defaultTone(p.sampleRate)
}

// defaultTone synthesizes one second of an 880 Hz beep pattern: half a second
// of tone, half a second of silence.
func defaultTone(sampleRate int) []byte {
	total := sampleRate
	beep := sampleRate / 2
	buf := make([]byte, total*2)
	for i := 0; i < beep; i++ {
		v := int16(0.4 * math.MaxInt16 * math.Sin(2*math.Pi*880*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// loopReader cycles over a sample buffer forever.
type loopReader struct {
	data []byte
	pos  int
}

func newLoopReader(data []byte) io.Reader {
	return &loopReader{data: data}
}

func (r *loopReader) Read(b []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, r.data[r.pos:])
	r.pos = (r.pos + n) % len(r.data)
	return n, nil
}
