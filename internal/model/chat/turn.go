package chat

import "time"

// Turn persists one query/response exchange for audit/debug. IsError marks
// turns whose response is an error message so the front-end can render them
// without re-parsing the text.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	IsError   bool      `json:"isError"`
	CreatedAt time.Time `json:"createdAt"`
}
