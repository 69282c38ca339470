package models

import "time"

// BuildStatus represents the lifecycle state of a build request.
//
// Build is the initial and resettable state. InQueue means the request
// is waiting for the single global execution slot. Statuses between
// Starting and Finished are opaque stage names mirrored from the stage
// tracker while the CI pipeline progresses.
type BuildStatus string

const (
	BuildStatusBuild    BuildStatus = "Build"
	BuildStatusStarting BuildStatus = "Starting"
	BuildStatusInQueue  BuildStatus = "InQueue"
	BuildStatusFinished BuildStatus = "Finished"
	BuildStatusFailed   BuildStatus = "Failed"
	BuildStatusDownload BuildStatus = "Download"
)

// IsActive reports whether a build in this status occupies the single
// execution slot. Anything other than Build, InQueue, Failed and
// Download counts as active, including the opaque in-progress stage
// names.
func (s BuildStatus) IsActive() bool {
	switch s {
	case BuildStatusBuild, BuildStatusInQueue, BuildStatusFailed, BuildStatusDownload:
		return false
	}
	return true
}

// CanInvoke reports whether a build in this status may be (re)invoked.
func (s BuildStatus) CanInvoke() bool {
	switch s {
	case BuildStatusBuild, BuildStatusFailed, BuildStatusDownload:
		return true
	}
	return false
}

// BuildRequest represents one attempt to compile and package a project
// for a user.
type BuildRequest struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`

	Status BuildStatus `json:"status"`

	// TagName correlates the request with the CI job name and the
	// staged artifact filename. It is regenerated on every invocation.
	TagName string `json:"tag_name"`

	FileName string `json:"file_name"`
	MD5Hash  string `json:"md5_hash"`

	// SendNotification is a sticky preference carried over from the
	// previous request of the same user.
	SendNotification bool `json:"send_notification"`

	// Deleted marks the row as soft-deleted. Deleted rows are never
	// returned by list operations.
	Deleted bool `json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBuildTag derives a CI job and artifact tag from a timestamp.
func NewBuildTag(now time.Time) string {
	return now.UTC().Format("20060102_150405")
}
