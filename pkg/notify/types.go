package notify

import (
	"time"

	"github.com/HaejunJang/airbng/pkg/push"
)

// Key identifies a logically-unique alarm. Two deliveries with the same id,
// message, type and related entity are the same alarm as far as the member
// is concerned, whatever the transport did.
type Key struct {
	AlarmID   int64
	Message   string
	Type      string
	RelatedID int64
}

// KeyOf derives the dedup key for an alarm payload.
func KeyOf(a push.Alarm) Key {
	return Key{
		AlarmID:   a.ID,
		Message:   a.Message,
		Type:      a.Type,
		RelatedID: a.RelatedID,
	}
}

// Notification is one visible inbox entry: the alarm plus the time the
// client first accepted it.
type Notification struct {
	Alarm      push.Alarm
	ReceivedAt time.Time
}

// Key returns the notification's dedup key.
func (n Notification) Key() Key {
	return KeyOf(n.Alarm)
}
