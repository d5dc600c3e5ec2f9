package conversation

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry of a call's conversation. The ordered list of turns is
// the literal context window sent to the chat backend.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TranscriptEntry is a caller-facing view of a user or assistant turn.
type TranscriptEntry struct {
	Speaker Role   `json:"speaker"`
	Text    string `json:"text"`
}
