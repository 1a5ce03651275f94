package client

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeReconnectAbandoned NoticeKind = "reconnect_abandoned"
	NoticeMutationsAbandoned NoticeKind = "mutations_abandoned"
)

// Notice is one user-facing message about a terminal failure.
type Notice struct {
	Kind         NoticeKind
	Message      string
	OperationIDs []string // Abandoned operations, for NoticeMutationsAbandoned
	At           time.Time
}

// Notifier displays notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(n.Message, "notice", n.Kind, "operations", len(n.OperationIDs))
}

// debouncer coalesces abandoned operations into one notice per window.
type debouncer struct {
	window time.Duration
	notify func(Notice)

	mu      sync.Mutex
	pending []string
	timer   *time.Timer
	stopped bool
}

func newDebouncer(window time.Duration, notify func(Notice)) *debouncer {
	return &debouncer{window: window, notify: notify}
}

// add records an abandoned operation. The first add in a quiet period arms
// the timer; later adds within the window join the same notice.
func (d *debouncer) add(opID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending = append(d.pending, opID)
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
	}
}

func (d *debouncer) fire() {
	d.mu.Lock()
	ids := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if len(ids) > 0 {
		d.notify(mutationNotice(ids))
	}
}

// stop flushes anything pending and disables further notices.
func (d *debouncer) stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	ids := d.pending
	d.pending = nil
	d.stopped = true
	d.mu.Unlock()

	if len(ids) > 0 {
		d.notify(mutationNotice(ids))
	}
}

func mutationNotice(ids []string) Notice {
	msg := "1 change could not be saved"
	if len(ids) > 1 {
		msg = strconv.Itoa(len(ids)) + " changes could not be saved"
	}
	return Notice{
		Kind:         NoticeMutationsAbandoned,
		Message:      msg,
		OperationIDs: ids,
		At:           time.Now(),
	}
}
