package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	alarmapp "gasmonitor-cloud/internal/alarms/application"
	alarms "gasmonitor-cloud/internal/alarms/domain"
	gases "gasmonitor-cloud/internal/gases/domain"
)

// GasReader resolves gas type metadata.
type GasReader interface {
	GetByID(ctx context.Context, id int64) (*gases.GasType, error)
}

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alarm lifecycle events and delivers them via a channel.
type Notifier struct {
	gases        GasReader
	channel      Channel
	template     *Template
	clock        Clock
	cooldown     time.Duration
	dedupeWindow time.Duration

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alarm and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an alarm notifier. The gas reader may be nil,
// in which case notifications carry the numeric gas id.
func NewNotifier(gasReader GasReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		gases:    gasReader,
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements alarmapp.AlarmNotifier.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if n == nil || n.channel == nil {
		return
	}
	data := n.buildTemplateData(ctx, event)
	content, err := n.template.Render(data)
	if err != nil {
		return
	}
	if !n.shouldSend(event.Alarm.ID, event.Type, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return
	}
	n.markSent(event.Alarm.ID, event.Type, content)
}

func (n *Notifier) buildTemplateData(ctx context.Context, event alarmapp.AlarmEvent) TemplateData {
	alarm := event.Alarm
	gasName := strconv.FormatInt(alarm.GasTypeID, 10)
	if n.gases != nil {
		if gas, err := n.gases.GetByID(ctx, alarm.GasTypeID); err == nil && gas != nil && gas.Name != "" {
			gasName = gas.Name
		}
	}
	return TemplateData{
		Gas:          gasName,
		GasID:        strconv.FormatInt(alarm.GasTypeID, 10),
		Status:       statusLabel(alarm.Status),
		Measurements: alarm.Count,
		Threshold:    fmt.Sprintf("%.2f", alarm.RefThreshold),
		OpenedAt:     alarm.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    alarm.UpdatedAt.UTC().Format(time.RFC3339),
		Event:        event.Type,
		EventLabel:   eventLabel(event.Type),
	}
}

func statusLabel(status string) string {
	switch status {
	case alarms.StatusOpen:
		return "open"
	case alarms.StatusClosed:
		return "closed"
	default:
		return status
	}
}

func eventLabel(event string) string {
	switch event {
	case alarmapp.EventOpened:
		return "Triggered"
	case alarmapp.EventExtended:
		return "Extended"
	case alarmapp.EventClosed:
		return "Closed"
	case alarmapp.EventDeleted:
		return "Deleted"
	default:
		return event
	}
}

func (n *Notifier) shouldSend(alarmID int64, eventType, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alarmID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alarmID int64, eventType, content string) {
	if n == nil {
		return
	}
	key := notificationKey(alarmID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alarmID int64, eventType string) string {
	return strconv.FormatInt(alarmID, 10) + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
