package types

// Client message types accepted on the websocket.
const (
	MsgHeartbeat = "heartbeat"
	MsgChallenge = "challenge"
	MsgAccept    = "accept"
	MsgJoin      = "join"
	MsgChoose    = "choose"
	MsgAct       = "act"
	MsgSync      = "sync"
)

type ClientMessage struct {
	Type      string `json:"type"`
	To        string `json:"to,omitempty"`
	From      string `json:"from,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Choice    string `json:"choice,omitempty"`
	Action    string `json:"action,omitempty"`
}

// Request bodies for the HTTP API.

type UserRequest struct {
	Username string `json:"username"`
}

type ChallengeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type MoveRequest struct {
	Username string `json:"username"`
	Choice   string `json:"choice,omitempty"`
	Action   string `json:"action,omitempty"`
}
