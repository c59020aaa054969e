package core

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Turn is one entry of a conversation as exchanged between client and relay.
type Turn struct {
	Role    MessageRole `json:"role" validate:"required,oneof=system user assistant"`
	Content string      `json:"content"`
}

func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func NewAssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// LastUserContent returns the content of the most recent user turn, or "".
func LastUserContent(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// Tail returns at most n of the most recent turns. n <= 0 returns all of them.
func Tail(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
