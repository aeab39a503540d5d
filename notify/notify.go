// Package notify keeps a short feed of user-facing notifications.
//
// Notifications are upserted by id, so a flow can show "loading" and later
// replace it with "success" or "error" under the same id.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is how many notifications are kept before the oldest is evicted
const DefaultCapacity = 50

// Level classifies a notification
type Level string

const (
	LevelLoading Level = "loading"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is one entry of the feed
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Notifier is what flows report progress through
type Notifier interface {
	Loading(id, message string) string
	Success(id, message string) string
	Error(id, message string) string
	Info(id, message string) string
}

// Center is a bounded, concurrency-safe notification feed
type Center struct {
	mu       sync.Mutex
	capacity int
	order    []string
	byID     map[string]*Notification
	now      func() time.Time
}

// NewCenter creates a feed holding at most capacity notifications
func NewCenter(capacity int) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Center{
		capacity: capacity,
		byID:     make(map[string]*Notification),
		now:      time.Now,
	}
}

// Loading shows a progress notification and returns its id
func (c *Center) Loading(id, message string) string {
	return c.upsert(id, LevelLoading, message)
}

// Success replaces or adds a success notification
func (c *Center) Success(id, message string) string {
	return c.upsert(id, LevelSuccess, message)
}

// Error replaces or adds an error notification
func (c *Center) Error(id, message string) string {
	return c.upsert(id, LevelError, message)
}

// Info adds an informational notification
func (c *Center) Info(id, message string) string {
	return c.upsert(id, LevelInfo, message)
}

func (c *Center) upsert(id string, level Level, message string) string {
	if id == "" {
		id = uuid.New().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if n, ok := c.byID[id]; ok {
		n.Level = level
		n.Message = message
		n.UpdatedAt = now
		c.moveToBackLocked(id)
		return id
	}

	c.byID[id] = &Notification{
		ID:        id,
		Level:     level,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.order = append(c.order, id)

	for len(c.order) > c.capacity {
		delete(c.byID, c.order[0])
		c.order = c.order[1:]
	}
	return id
}

func (c *Center) moveToBackLocked(id string) {
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, id)
}

// List returns the feed, most recently updated first
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		out = append(out, *c.byID[c.order[i]])
	}
	return out
}

// Get returns one notification
func (c *Center) Get(id string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.byID[id]
	if !ok {
		return Notification{}, false
	}
	return *n, true
}

// Dismiss removes a notification. It reports whether it existed.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Discard drops every notification
var Discard Notifier = discard{}

type discard struct{}

func (discard) Loading(id, _ string) string { return id }
func (discard) Success(id, _ string) string { return id }
func (discard) Error(id, _ string) string   { return id }
func (discard) Info(id, _ string) string    { return id }
