package conversation

import "github.com/wolfman30/salesfusion/internal/qualification"

// QualificationEvent is published after every qualification recompute.
// Conversation is a snapshot taken after the update was applied.
type QualificationEvent struct {
	Conversation      *Conversation
	Update            qualification.Update
	QualifiedCriteria []string
}
