package jobstate

import "log/slog"

// JobsAvailableCallback is invoked with a job type whenever a job of that
// type becomes activatable. It must not panic; Notifier recovers and logs
// if it does, but a callback that routinely panics will still lose the
// notification that triggered the panic.
type JobsAvailableCallback func(jobType string)

// Notifier holds at most one callback and fires it synchronously on
// whatever goroutine calls Notify — normally the transaction-applying
// partition thread. There is no de-duplication: callers invoking Notify
// from create/fail/resolve/recurAfterBackoff get one call per transition,
// even if the same type fires repeatedly in one transaction.
type Notifier struct {
	callback JobsAvailableCallback
	logger   *slog.Logger
}

// NewNotifier returns a Notifier with no callback registered.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// SetJobsAvailableCallback registers cb as the single listener, replacing
// any previously registered callback. A nil cb disables notifications.
func (n *Notifier) SetJobsAvailableCallback(cb JobsAvailableCallback) {
	n.callback = cb
}

// Notify invokes the registered callback with jobType, if any. A
// panicking callback is recovered and logged; Notify never propagates it
// to the caller, since a misbehaving listener must not abort the
// transaction that triggered the notification.
func (n *Notifier) Notify(jobType []byte) {
	if n.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("jobs-available callback panicked", "jobType", string(jobType), "panic", r)
		}
	}()
	n.callback(string(jobType))
}
