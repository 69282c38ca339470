package models

import "time"

// StageName identifies one phase of the CI pipeline.
type StageName string

// Pipeline stages in execution order.
const (
	StageStarting      StageName = "Starting"
	StageIntegrating   StageName = "Integrating"
	StageApplGen       StageName = "ApplGen"
	StageNvmGen        StageName = "NvmGen"
	StageParametersGen StageName = "ParametersGen"
	StageDiagnoseGen   StageName = "DiagnoseGen"
	StageNetworkGen    StageName = "NetworkGen"
	StageRteGen        StageName = "RteGen"
	StageUpdateIds     StageName = "UpdateIds"
	StageCompiling     StageName = "Compiling"
	StageFinished      StageName = "Finished"
	StageDownload      StageName = "Download"
)

// StageOrder is the fixed order of pipeline stages.
var StageOrder = []StageName{
	StageStarting,
	StageIntegrating,
	StageApplGen,
	StageNvmGen,
	StageParametersGen,
	StageDiagnoseGen,
	StageNetworkGen,
	StageRteGen,
	StageUpdateIds,
	StageCompiling,
	StageFinished,
	StageDownload,
}

// StageStatus represents the progress of one pipeline stage.
type StageStatus string

const (
	StageStatusWaiting    StageStatus = "Waiting"
	StageStatusInProgress StageStatus = "In Progress"
	StageStatusDone       StageStatus = "Done"
	StageStatusFailed     StageStatus = "Failed"
)

// Stage holds the status and timestamp of one pipeline stage. A zero
// Timestamp means the stage has not been reached yet; it is set only
// when the status leaves Waiting.
type Stage struct {
	Name      StageName   `json:"name"`
	Status    StageStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// StageTracker is the fine-grained progress record for one build
// invocation. There is at most one tracker row per build at a time;
// the previous row is replaced on rebuild.
type StageTracker struct {
	BuildID   string `json:"build_id"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`

	// InQueue is true while another build occupies the execution slot.
	InQueue bool `json:"in_queue"`

	Stages []Stage `json:"stages"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStageTracker builds a fresh tracker with every stage Waiting.
// When the build is admitted immediately (queued == false) the
// Starting stage is marked In Progress with its timestamp set.
func NewStageTracker(buildID, userID, projectID string, queued bool, now time.Time) *StageTracker {
	t := &StageTracker{
		BuildID:   buildID,
		UserID:    userID,
		ProjectID: projectID,
		InQueue:   queued,
		Stages:    make([]Stage, len(StageOrder)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, name := range StageOrder {
		t.Stages[i] = Stage{Name: name, Status: StageStatusWaiting}
	}
	if !queued {
		t.Stages[0].Status = StageStatusInProgress
		t.Stages[0].Timestamp = now
	}
	return t
}

// Stage returns a pointer to the named stage, or nil if unknown.
func (t *StageTracker) Stage(name StageName) *Stage {
	for i := range t.Stages {
		if t.Stages[i].Name == name {
			return &t.Stages[i]
		}
	}
	return nil
}

// CurrentStage returns the stage currently In Progress, or nil when no
// stage is running.
func (t *StageTracker) CurrentStage() *Stage {
	for i := range t.Stages {
		if t.Stages[i].Status == StageStatusInProgress {
			return &t.Stages[i]
		}
	}
	return nil
}

// SetStage updates the named stage's status, stamping the timestamp
// the first time the stage leaves Waiting.
func (t *StageTracker) SetStage(name StageName, status StageStatus, now time.Time) {
	s := t.Stage(name)
	if s == nil {
		return
	}
	if s.Status == StageStatusWaiting && status != StageStatusWaiting {
		s.Timestamp = now
	}
	s.Status = status
	t.UpdatedAt = now
}

// Reset returns every stage to Waiting and clears the timestamps.
func (t *StageTracker) Reset(now time.Time) {
	for i := range t.Stages {
		t.Stages[i].Status = StageStatusWaiting
		t.Stages[i].Timestamp = time.Time{}
	}
	t.InQueue = false
	t.UpdatedAt = now
}
