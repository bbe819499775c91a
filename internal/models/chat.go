package models

import "time"

// Roles for transcript turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one user or assistant message. Turns are appended to a transcript
// and never mutated or removed, except by an explicit clear.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the ordered history of turns for one chat session.
// Insertion order is chronological and is the sole ordering signal.
type Transcript []Turn

// Clone returns a copy of the transcript so a saved snapshot cannot be
// mutated through the working session slice.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}
