package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStageTrackerImmediate(t *testing.T) {
	now := time.Now().UTC()
	tracker := NewStageTracker("b1", "u1", "p1", false, now)

	require.Len(t, tracker.Stages, len(StageOrder))
	assert.False(t, tracker.InQueue)

	first := tracker.Stages[0]
	assert.Equal(t, StageStarting, first.Name)
	assert.Equal(t, StageStatusInProgress, first.Status)
	assert.Equal(t, now, first.Timestamp)

	for _, s := range tracker.Stages[1:] {
		assert.Equal(t, StageStatusWaiting, s.Status, "stage %s", s.Name)
		assert.True(t, s.Timestamp.IsZero(), "stage %s", s.Name)
	}
}

func TestNewStageTrackerQueued(t *testing.T) {
	now := time.Now().UTC()
	tracker := NewStageTracker("b1", "u1", "p1", true, now)

	assert.True(t, tracker.InQueue)
	for _, s := range tracker.Stages {
		assert.Equal(t, StageStatusWaiting, s.Status, "stage %s", s.Name)
		assert.True(t, s.Timestamp.IsZero(), "stage %s", s.Name)
	}
}

func TestStageOrderIsStable(t *testing.T) {
	now := time.Now().UTC()
	tracker := NewStageTracker("b1", "u1", "p1", false, now)

	for i, name := range StageOrder {
		assert.Equal(t, name, tracker.Stages[i].Name)
	}
}

func TestSetStageStampsTimestampOnce(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewStageTracker("b1", "u1", "p1", true, start)

	t1 := start.Add(time.Minute)
	tracker.SetStage(StageCompiling, StageStatusInProgress, t1)

	s := tracker.Stage(StageCompiling)
	require.NotNil(t, s)
	assert.Equal(t, StageStatusInProgress, s.Status)
	assert.Equal(t, t1, s.Timestamp)

	// Moving to Done must not touch the start timestamp.
	t2 := t1.Add(time.Minute)
	tracker.SetStage(StageCompiling, StageStatusDone, t2)
	assert.Equal(t, StageStatusDone, s.Status)
	assert.Equal(t, t1, s.Timestamp)
	assert.Equal(t, t2, tracker.UpdatedAt)
}

func TestSetStageUnknownNameIsNoop(t *testing.T) {
	now := time.Now().UTC()
	tracker := NewStageTracker("b1", "u1", "p1", true, now)

	tracker.SetStage(StageName("Bogus"), StageStatusDone, now.Add(time.Hour))
	assert.Equal(t, now, tracker.UpdatedAt)
}

func TestCurrentStage(t *testing.T) {
	now := time.Now().UTC()

	tracker := NewStageTracker("b1", "u1", "p1", true, now)
	assert.Nil(t, tracker.CurrentStage())

	tracker.SetStage(StageRteGen, StageStatusInProgress, now)
	current := tracker.CurrentStage()
	require.NotNil(t, current)
	assert.Equal(t, StageRteGen, current.Name)
}

func TestReset(t *testing.T) {
	now := time.Now().UTC()
	tracker := NewStageTracker("b1", "u1", "p1", false, now)
	tracker.SetStage(StageIntegrating, StageStatusInProgress, now.Add(time.Minute))
	tracker.SetStage(StageStarting, StageStatusDone, now.Add(time.Minute))

	later := now.Add(time.Hour)
	tracker.Reset(later)

	assert.False(t, tracker.InQueue)
	assert.Equal(t, later, tracker.UpdatedAt)
	for _, s := range tracker.Stages {
		assert.Equal(t, StageStatusWaiting, s.Status, "stage %s", s.Name)
		assert.True(t, s.Timestamp.IsZero(), "stage %s", s.Name)
	}
}
