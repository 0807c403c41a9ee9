package types

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Sources are rendered citation lines kept for display only.
	Sources []string `json:"sources,omitempty"`
}

// Turn is the wire shape of one history entry sent to the endpoint.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turns strips timestamps so history can be sent over the wire.
func Turns(msgs []Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Turn{Role: m.Role, Content: m.Content})
	}
	return out
}
