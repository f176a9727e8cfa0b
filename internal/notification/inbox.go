package notification

import (
	"sync"
	"time"

	"trading-alerts/internal/model"
)

// Notification is one in-app notification.
type Notification struct {
	Seq       int64              `json:"seq"`
	AlertID   string             `json:"alert_id"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Event     model.TriggerEvent `json:"event"`
	CreatedAt time.Time          `json:"created_at"`
}

// Inbox is a fixed-size circular buffer of recent in-app notifications.
// Safe for concurrent writes and reads.
type Inbox struct {
	mu   sync.RWMutex
	buf  []Notification
	cap  int
	pos  int // next write position
	full bool
	seq  int64

	// OnPush runs after every push, outside the lock. It must not block.
	OnPush func(Notification)
}

// NewInbox creates an inbox holding up to capacity notifications.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 500
	}
	return &Inbox{
		buf: make([]Notification, capacity),
		cap: capacity,
	}
}

// Push records a trigger. The oldest entry is overwritten when full.
func (ib *Inbox) Push(ev model.TriggerEvent) Notification {
	ib.mu.Lock()
	ib.seq++
	n := Notification{
		Seq:       ib.seq,
		AlertID:   ev.AlertID,
		Title:     Title(ev),
		Message:   Message(ev),
		Event:     ev,
		CreatedAt: ev.TriggeredAt,
	}
	ib.buf[ib.pos] = n
	ib.pos = (ib.pos + 1) % ib.cap
	if ib.pos == 0 && !ib.full {
		ib.full = true
	}
	hook := ib.OnPush
	ib.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return n
}

// Since returns notifications with seq > after, oldest first.
func (ib *Inbox) Since(after int64) []Notification {
	ib.mu.RLock()
	defer ib.mu.RUnlock()

	var out []Notification
	for i := 0; i < ib.len(); i++ {
		n := ib.buf[ib.index(i)]
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// Recent returns up to limit of the newest notifications, oldest first.
func (ib *Inbox) Recent(limit int) []Notification {
	ib.mu.RLock()
	defer ib.mu.RUnlock()

	count := ib.len()
	if limit <= 0 || limit > count {
		limit = count
	}
	out := make([]Notification, 0, limit)
	for i := count - limit; i < count; i++ {
		out = append(out, ib.buf[ib.index(i)])
	}
	return out
}

// Len returns the number of notifications held.
func (ib *Inbox) Len() int {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.len()
}

func (ib *Inbox) len() int {
	if ib.full {
		return ib.cap
	}
	return ib.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (ib *Inbox) index(logical int) int {
	if ib.full {
		return (ib.pos + logical) % ib.cap
	}
	return logical
}
