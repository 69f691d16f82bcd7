// Package events defines event types for analysis lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all analysis lifecycle events.
const Topic = "diligence.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	AnalysisQueuedEvent   EventType = "analysis.queued"
	AnalysisStartedEvent  EventType = "analysis.started"
	AnalysisFinishedEvent EventType = "analysis.finished"
	AnalysisFailedEvent   EventType = "analysis.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	AnalysisID string         `json:"analysis_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, analysisID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		AnalysisID: analysisID,
	}
}

// AnalysisQueued is published when a job is accepted.
type AnalysisQueued struct {
	BaseEvent

	Owner       string `json:"owner"`
	SubjectName string `json:"subject_name"`
}

func (e AnalysisQueued) GetType() EventType {
	return AnalysisQueuedEvent
}

// AnalysisStarted is published when the workflow picks a job up.
type AnalysisStarted struct {
	BaseEvent

	SubjectName string `json:"subject_name"`
}

func (e AnalysisStarted) GetType() EventType {
	return AnalysisStartedEvent
}

// AnalysisFinished is published when a run reaches a terminal outcome, with
// the decision when one was produced.
type AnalysisFinished struct {
	BaseEvent

	Outcome        string        `json:"outcome"`
	Recommendation string        `json:"recommendation,omitempty"`
	RetryCount     int           `json:"retry_count"`
	Duration       time.Duration `json:"duration"`
}

func (e AnalysisFinished) GetType() EventType {
	return AnalysisFinishedEvent
}

// AnalysisFailed is published when the workflow could not run at all, as
// opposed to running and classifying the outcome as failed.
type AnalysisFailed struct {
	BaseEvent

	Error string `json:"error"`
}

func (e AnalysisFailed) GetType() EventType {
	return AnalysisFailedEvent
}
