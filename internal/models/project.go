package models

import "time"

// Project is one isolated workspace: its own documents, index, and
// transcript. At most one project is active at a time.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
