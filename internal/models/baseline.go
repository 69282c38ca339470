package models

import "time"

// Baseline is the per-project reference artifact that must be selected
// before a build can be invoked.
type Baseline struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	FileName  string    `json:"file_name"`
	Selected  bool      `json:"selected"`
	CreatedAt time.Time `json:"created_at"`
}
