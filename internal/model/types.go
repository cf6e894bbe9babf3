// Package model defines shared data structures.
package model

import "time"

// Status is the lifecycle state of a run.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusPaused
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Config defines runtime settings for the timer process.
type Config struct {
	SplitsPath string
	Game       string
	Category   string
	SplitNames string
	SocketPath string
	Display    string
	Tick       time.Duration
	LogLevel   string
	DBPath     string
}

// HistoryConfig defines filters for the history report.
type HistoryConfig struct {
	Game     string
	Category string
	Last     int
}

// Snapshot is a consistent, render-facing view of the timer. It shares no
// memory with engine state.
type Snapshot struct {
	Game     string
	Category string
	RunID    string
	Status   Status
	Index    int
	Elapsed  time.Duration
	Splits   []SplitView
}

// SplitView describes one split as of a snapshot.
type SplitView struct {
	Name string
	// Stored historical values.
	Best *time.Duration
	Gold *time.Duration
	// Values recorded by the current run.
	Time    *time.Duration
	Segment *time.Duration
	Skipped bool
	Current bool
	// Diff is Time (or the live elapsed for the current split) minus Best.
	Diff   *time.Duration
	IsGold bool
}

// Attempt captures one run that was finished or reset after starting.
type Attempt struct {
	ID          string
	Game        string
	Category    string
	StartedAt   time.Time
	EndedAt     time.Time
	Finished    bool
	Elapsed     time.Duration
	PausedTotal time.Duration
	Splits      []AttemptSplit
}

// AttemptSplit is the recorded cumulative time of one split; nil Time means
// the split was skipped or never reached.
type AttemptSplit struct {
	Name string
	Time *time.Duration
}

// AttemptAggregate summarizes a stored attempt for reporting.
type AttemptAggregate struct {
	ID        string
	StartedAt time.Time
	Finished  bool
	Elapsed   time.Duration
}

// SplitAggregate summarizes the recorded cumulative times of one split across
// attempts.
type SplitAggregate struct {
	Position int
	Name     string
	Count    int
	SumMs    int64
	MinMs    int64
}
