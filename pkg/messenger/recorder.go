package messenger

import (
	"context"
	"sync"
	"time"
)

// Delivery is one recorded Send.
type Delivery struct {
	Key     string    `json:"key"`
	Payload any       `json:"payload"`
	Roles   []string  `json:"roles"`
	SentAt  time.Time `json:"sent_at"`
}

// Recorder keeps every delivery in memory. Useful for tests and dry runs.
type Recorder struct {
	*Templates

	mu         sync.Mutex
	deliveries []Delivery
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Templates: NewTemplates()}
}

// Send records the delivery of the message registered under key.
func (r *Recorder) Send(ctx context.Context, key string, roles []string) error {
	payload, err := r.Lookup(key)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{
		Key:     key,
		Payload: payload,
		Roles:   append([]string(nil), roles...),
		SentAt:  time.Now(),
	})
	return nil
}

// Deliveries returns a copy of the recorded deliveries in send order.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Reset drops recorded deliveries but keeps registered messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
