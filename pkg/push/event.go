package push

import "encoding/json"

// Event names carried on the push channel.
const (
	// EventReady is the server's readiness signal. The channel only counts
	// as connected once this arrives; a transport-level open can happen
	// before the server has attached the member's stream.
	EventReady = "connect"

	// EventAlarm carries a live alarm payload.
	EventAlarm = "alarm"
)

// Event is one named message from the push channel. Data holds the raw
// payload so listeners decode only the events they care about.
type Event struct {
	Name string
	Data json.RawMessage
}

// envelope is the wire framing of a push message.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MemberID is a member identifier carried in a push payload. The backend
// emits it as a JSON string in some payloads and as a bare number in others,
// so it decodes from either.
type MemberID string

// UnmarshalJSON implements json.Unmarshaler.
func (m *MemberID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MemberID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = MemberID(n.String())
	return nil
}

// Alarm is the payload of an EventAlarm message.
type Alarm struct {
	ID        int64    `json:"id"`
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	RelatedID int64    `json:"relatedEntityId"`
	Receiver  MemberID `json:"receiverId"`
}

// DecodeAlarm decodes an EventAlarm payload.
func DecodeAlarm(ev Event) (Alarm, error) {
	var a Alarm
	if err := json.Unmarshal(ev.Data, &a); err != nil {
		return Alarm{}, err
	}
	return a, nil
}
