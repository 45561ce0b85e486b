// Package status carries the controller's per-frame state to observers.
package status

import (
	"image"
	"sync"
	"time"
)

// State is a snapshot of the pipeline after one frame. Values are copies;
// observers may keep them.
type State struct {
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
	Enabled bool      `json:"enabled"`

	// Volume is the last volume the sink applied; HasVolume is false until
	// the first successful command.
	Volume    int  `json:"volume"`
	HasVolume bool `json:"has_volume"`

	// RawVolume is the mapped volume before smoothing.
	HandPresent bool          `json:"hand_present"`
	Distance    float64       `json:"distance"`
	RawVolume   float64       `json:"raw_volume"`
	Thumb       image.Point   `json:"thumb"`
	Index       image.Point   `json:"index"`
	Points      []image.Point `json:"points,omitempty"`

	Sink      string `json:"sink"`
	SinkError string `json:"sink_error,omitempty"`
}

// Publisher fans State out to subscribers. Slow subscribers miss
// intermediate states but always see the newest one they can take.
type Publisher struct {
	mu     sync.Mutex
	latest State
	has    bool
	subs   map[chan State]struct{}
}

// NewPublisher creates a Publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[chan State]struct{})}
}

// Publish records st as the latest state and offers it to every subscriber.
func (p *Publisher) Publish(st State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = st
	p.has = true
	for ch := range p.subs {
		select {
		case ch <- st:
		default:
			// Replace the stale value the subscriber has not read yet.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// Latest returns the most recent state and whether one was published.
func (p *Publisher) Latest() (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.has
}

// Subscribe returns a channel of states and a function that ends the
// subscription and closes the channel.
func (p *Publisher) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
