package models

import "time"

// BuildLogEntry is one line of CI output attached to a build request.
type BuildLogEntry struct {
	ID        string    `json:"id"`
	BuildID   string    `json:"build_id"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}
