package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"alarm-delivery-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// pushJob carries the rendered alert for one alarm firing.
type pushJob struct {
	AlarmID int64    `json:"alarm_id"`
	Label   string   `json:"label"`
	Kind    string   `json:"kind"`
	Actions []string `json:"actions"`
	Clear   bool     `json:"clear,omitempty"`
}

// WorkerPool manages a pool of workers delivering web push alerts to every
// registered subscription.
type WorkerPool struct {
	size    int
	jobs    chan pushJob
	store   store.Store
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan pushJob, size),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Push worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.deliver(ctx, job)
		case <-ctx.Done():
			log.Printf("Push worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert for delivery. It never blocks the firing path: if
// the queue is full the alert is dropped with a log line.
func (wp *WorkerPool) Dispatch(job pushJob) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("Push queue full, dropping alert for alarm %d", job.AlarmID)
	}
}

// deliver fans the alert out to all subscriptions.
func (wp *WorkerPool) deliver(ctx context.Context, job pushJob) {
	subs, err := wp.store.ListSubscriptions(ctx)
	if err != nil {
		log.Printf("Error fetching subscriptions for alarm %d: %v", job.AlarmID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		log.Printf("Error encoding alert payload for alarm %d: %v", job.AlarmID, err)
		return
	}

	log.Printf("Sending %d push alerts for alarm %d", len(subs), job.AlarmID)
	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}
		resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
		if err != nil {
			log.Printf("Error sending push to %s: %v", sub.Endpoint, err)
			continue
		}
		resp.Body.Close()

		// Prune expired subscriptions.
		if resp.StatusCode == http.StatusGone {
			log.Printf("Subscription %s is expired. Deleting.", sub.Endpoint)
			if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
				log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
			}
		}
	}
}
