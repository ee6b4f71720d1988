package push

// State is the connection state of the push channel. Transitions are guarded
// by the manager's state tag, never by elapsed time alone.
type State int

const (
	// StateDisconnected means no transport is open and nothing is scheduled.
	StateDisconnected State = iota

	// StateConnecting means a dial is in flight or the transport is open but
	// the server has not yet confirmed the member's stream with its ready
	// event.
	StateConnecting

	// StateConnected means the server acknowledged the stream; alarm events
	// are flowing.
	StateConnected

	// StateReconnecting means the previous attempt failed and a backoff
	// timer is pending.
	StateReconnecting

	// StateFailed means the reconnect budget is exhausted; only a manual
	// Connect resumes.
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
