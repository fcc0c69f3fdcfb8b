package services

import (
	"sync"

	"github.com/quakewatch/quakewatch/internal/models"
)

// Snapshot is the complete observable state of the fetch service at one
// moment: loading flag, progress percentage, current records and summary, and
// the last error. Subscribers always receive whole snapshots; the newest one
// wins.
type Snapshot struct {
	RunID    string                    `json:"run_id"`
	Loading  bool                      `json:"loading"`
	Progress float64                   `json:"progress"` // 0-100
	Partial  bool                      `json:"partial"`  // interim publish of a large result set
	Records  []models.EarthquakeRecord `json:"records"`
	Summary  models.Summary            `json:"summary"`
	Err      string                    `json:"error,omitempty"`
	ErrKind  string                    `json:"error_kind,omitempty"`
}

const subscriberBuffer = 16

// Broadcaster fans snapshots out to subscribers with last-value replay: a new
// subscriber immediately receives the current snapshot, and a slow subscriber
// loses old snapshots rather than blocking the publisher.
type Broadcaster struct {
	mu   sync.Mutex
	last Snapshot
	subs map[chan Snapshot]struct{}
}

// NewBroadcaster returns an empty broadcaster seeded with a zero snapshot.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Snapshot]struct{})}
}

// Subscribe registers a new subscriber and replays the current snapshot.
func (b *Broadcaster) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	ch <- b.last
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber. Its channel is not closed so a concurrent
// publish can never panic; the caller simply stops reading.
func (b *Broadcaster) Unsubscribe(ch chan Snapshot) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Publish replaces the current snapshot and offers it to every subscriber,
// evicting each subscriber's oldest pending snapshot when its buffer is full.
func (b *Broadcaster) Publish(snapshot Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = snapshot
	for ch := range b.subs {
		sendLatest(ch, snapshot)
	}
}

func sendLatest(ch chan Snapshot, snapshot Snapshot) {
	for {
		select {
		case ch <- snapshot:
			return
		default:
			// Buffer full: evict the oldest pending snapshot and retry.
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Last returns the most recently published snapshot.
func (b *Broadcaster) Last() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}
