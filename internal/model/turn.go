package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is an immutable entry of a conversation thread. Timestamp is a fixed
// width UTC string, so lexical order is chronological order.
type Turn struct {
	ThreadID  string `gorm:"primaryKey;size:128" json:"thread_id"`
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	Role      string `gorm:"size:16;not null" json:"role"`
	Content   string `gorm:"type:text;not null" json:"content"`
	Timestamp string `gorm:"size:32;not null;index" json:"timestamp"`
}

func (Turn) TableName() string {
	return "chat_turns"
}
