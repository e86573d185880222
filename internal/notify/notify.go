package notify

import (
	"time"

	"birthdayadmin/internal/metrics"
)

// DefaultTimeout is how long a notification stays visible without interaction.
const DefaultTimeout = 6 * time.Second

// Severity of a notification.
type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
)

// State is the single notification slot. The zero value is hidden.
type State struct {
	Visible  bool
	Message  string
	Severity Severity
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfter(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Controller holds one notification at a time. It is not safe for concurrent
// use; the owner serializes calls, and dispatch must hand expiry back to
// that same serialized context.
type Controller struct {
	timeout  time.Duration
	after    AfterFunc
	dispatch func(func())

	state State
	gen   uint64
	stop  func() bool
}

// New creates a controller. dispatch runs the auto-dismiss transition; pass
// nil to run it directly on the timer goroutine.
func New(timeout time.Duration, dispatch func(func())) *Controller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Controller{timeout: timeout, after: realAfter, dispatch: dispatch}
}

// WithAfterFunc replaces the timer source, for tests.
func (c *Controller) WithAfterFunc(after AfterFunc) *Controller {
	c.after = after
	return c
}

// State returns the current slot.
func (c *Controller) State() State { return c.state }

// Raise shows a notification, replacing whatever is visible, and restarts the
// auto-dismiss timer.
func (c *Controller) Raise(message string, severity Severity) {
	c.cancelTimer()
	c.gen++
	gen := c.gen
	c.state = State{Visible: true, Message: message, Severity: severity}
	c.stop = c.after(c.timeout, func() {
		c.dispatch(func() { c.expire(gen) })
	})
	metrics.Notifications.WithLabelValues(string(severity)).Inc()
}

// Dismiss hides the notification. The message and severity are kept so a
// closing animation can still render them.
func (c *Controller) Dismiss() {
	c.cancelTimer()
	c.state.Visible = false
}

// expire hides the notification only if it is still the one the timer was
// started for.
func (c *Controller) expire(gen uint64) {
	if gen != c.gen {
		return
	}
	c.stop = nil
	c.state.Visible = false
}

func (c *Controller) cancelTimer() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}
