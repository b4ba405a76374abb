package types

// Server -> Client event types.
const (
	EvtConnectedAck      = "connected-ack"
	EvtChallengeReceived = "challenge-received"
	EvtSessionStarted    = "session-started"
	EvtSessionState      = "session-state-updated"
	EvtError             = "error"
)

// Event is the envelope for every message pushed to a live connection.
//
//	connected-ack:          username, keepalive_ms
//	challenge-received:     from
//	session-started:        session_id, opponent
//	session-state-updated:  session_id, state
//	error:                  code, error (and session_id when it concerns one)
type Event struct {
	Type        string        `json:"type"`
	Username    string        `json:"username,omitempty"`
	KeepaliveMS int64         `json:"keepalive_ms,omitempty"`
	From        string        `json:"from,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	Opponent    string        `json:"opponent,omitempty"`
	State       *SessionState `json:"state,omitempty"`
	Code        string        `json:"code,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func ErrorEvent(code, msg string) Event {
	return Event{Type: EvtError, Code: code, Error: msg}
}
