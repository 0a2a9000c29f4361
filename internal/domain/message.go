// Package domain contains core domain types for the SQL chat application.
package domain

// Message roles as rendered in the chat pane.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Greeting is the single message a cleared chat resets to.
const Greeting = "How can I help you?"

// Message represents a single displayed chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewGreeting returns the initial message log for a fresh or cleared chat.
func NewGreeting() []Message {
	return []Message{{Role: RoleAssistant, Content: Greeting}}
}
