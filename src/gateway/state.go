package gateway

import "time"

type State int32

const (
	Disconnected State = iota
	Connecting
	Identifying
	Connected
	Resuming
	Reconnecting
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Identifying:
		return "identifying"
	case Connected:
		return "connected"
	case Resuming:
		return "resuming"
	case Reconnecting:
		return "reconnecting"
	case Closing:
		return "closing"
	}
	return "unknown"
}

type HeartbeatState struct {
	Interval   time.Duration
	LastSentAt time.Time
	LastAckAt  time.Time
	// Outstanding is true between a heartbeat and its ack.
	Outstanding bool
}

// SessionInfo is an immutable snapshot of the session. A new one is
// published after every mutation.
type SessionInfo struct {
	SessionID   string
	Sequence    uint64
	HasSequence bool
	ShardID     int
	ShardCount  int
	State       State
	ResumeURL   string
	ConnectedAt time.Time
	Heartbeat   HeartbeatState
	// Latency is the round trip of the last acknowledged heartbeat.
	Latency time.Duration
}
