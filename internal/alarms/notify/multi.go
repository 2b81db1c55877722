package notify

import (
	"context"

	alarmapp "gasmonitor-cloud/internal/alarms/application"
)

// MultiNotifier fans an alarm event out to several delivery targets,
// one per configured webhook endpoint.
type MultiNotifier struct {
	targets []alarmapp.AlarmNotifier
}

// NewMultiNotifier combines notifiers into one. Nil entries are
// skipped so callers can pass optional targets unconditionally.
func NewMultiNotifier(notifiers ...alarmapp.AlarmNotifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, notifier := range notifiers {
		if notifier != nil {
			m.targets = append(m.targets, notifier)
		}
	}
	return m
}

// Notify delivers the event to every target.
func (m *MultiNotifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if m == nil {
		return
	}
	for _, target := range m.targets {
		target.Notify(ctx, event)
	}
}
