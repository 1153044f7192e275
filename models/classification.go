package models

import (
	"strings"
	"time"

	"gear-aggregator/taxonomy"
)

// Confidence is the coarse certainty attached to a classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence normalises s. Anything unrecognised is low.
func ParseConfidence(s string) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium:
		return c
	default:
		return ConfidenceLow
	}
}

// Origin records which stage produced a classification.
type Origin string

const (
	OriginOverride Origin = "override"
	OriginKeyword  Origin = "keyword"
	OriginAI       Origin = "ai"
	OriginDefault  Origin = "default"
)

// ClassificationResult is a transient verdict. Only Category is ever
// persisted, onto the listing.
type ClassificationResult struct {
	Category   taxonomy.Category `json:"category"`
	Confidence Confidence        `json:"confidence"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Origin     Origin            `json:"origin"`
}

// Unclassified is the fallback verdict.
func Unclassified(origin Origin, reasoning string) ClassificationResult {
	return ClassificationResult{
		Category:   taxonomy.Other,
		Confidence: ConfidenceLow,
		Reasoning:  reasoning,
		Origin:     origin,
	}
}

// RunState is the state of a batch reclassification run.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStatePaused    RunState = "paused"
	RunStateFailed    RunState = "failed"
)

// BatchSummary reports one reclassification invocation.
//
// Remaining is the "other" count at start minus Updated. It is a progress
// estimate only: records skipped as still-other were processed but stay in
// the bucket, so it overstates how much work is left.
type BatchSummary struct {
	RunID                string    `json:"run_id"`
	State                RunState  `json:"state"`
	Processed            int       `json:"processed"`
	Updated              int       `json:"updated"`
	Unchanged            int       `json:"unchanged"`
	Failed               int       `json:"failed"`
	SkippedLowConfidence int       `json:"skipped_low_confidence"`
	SkippedStillOther    int       `json:"skipped_still_other"`
	NextCursor           int64     `json:"next_cursor"`
	Completed            bool      `json:"completed"`
	Remaining            int       `json:"remaining"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
}
