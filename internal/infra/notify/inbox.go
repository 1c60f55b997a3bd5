package notify

import (
	"context"
	"sync"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

const defaultInboxSize = 50

// Inbox keeps the latest notifications of each open session until drained.
// Older entries are dropped once a session holds Size messages. Sessions
// must be registered with Open; notifications for unknown or forgotten
// sessions are discarded.
type Inbox struct {
	Size int

	mu     sync.Mutex
	queues map[string][]ecg.Notification
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Inbox{Size: size, queues: make(map[string][]ecg.Notification)}
}

// Open registers a session so its notifications are kept.
func (i *Inbox) Open(sessionID string) {
	i.mu.Lock()
	if _, ok := i.queues[sessionID]; !ok {
		i.queues[sessionID] = nil
	}
	i.mu.Unlock()
}

func (i *Inbox) Notify(ctx context.Context, n ecg.Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	q, ok := i.queues[n.SessionID]
	if !ok {
		return nil
	}
	q = append(q, n)
	if len(q) > i.Size {
		q = q[len(q)-i.Size:]
	}
	i.queues[n.SessionID] = q
	return nil
}

// Drain returns and clears the session's pending notifications.
func (i *Inbox) Drain(sessionID string) []ecg.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	q, ok := i.queues[sessionID]
	if ok {
		i.queues[sessionID] = nil
	}
	return q
}

func (i *Inbox) Pending(sessionID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queues[sessionID])
}

// Sessions returns how many sessions hold a queue.
func (i *Inbox) Sessions() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queues)
}

// Forget drops a session's queue (teardown). Late notifications for it,
// such as a background history save finishing, are discarded.
func (i *Inbox) Forget(sessionID string) {
	i.mu.Lock()
	delete(i.queues, sessionID)
	i.mu.Unlock()
}
