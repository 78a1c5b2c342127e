// Package websocket broadcasts job lifecycle events to admin clients
// over WebSocket connections.
package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeJobQueued   EventType = "job_queued"
	EventTypeJobProgress EventType = "job_progress"
	EventTypeJobDone     EventType = "job_done"
)

// Event represents a WebSocket event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`

	// Job events
	JobID           string `json:"jobId,omitempty"`
	Title           string `json:"title,omitempty"`
	Mode            string `json:"mode,omitempty"`
	Stage           string `json:"stage,omitempty"` // queued, fetching, delivering, terminal outcome
	Percent         int    `json:"percent,omitempty"`
	DownloadedBytes int64  `json:"downloadedBytes,omitempty"`
	TotalBytes      int64  `json:"totalBytes,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	QueuePosition   int    `json:"queuePosition,omitempty"`
}

// NewEvent creates a new event with current timestamp
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// String returns the JSON string representation
func (e *Event) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"type":"error","message":"%s"}`, err.Error())
	}
	return string(data)
}

// NewHeartbeatEvent creates a heartbeat event
func NewHeartbeatEvent() *Event {
	return NewEvent(EventTypeHeartbeat)
}

// NewJobQueuedEvent creates a queued event with the job's position
func NewJobQueuedEvent(jobID, title, mode string, position int) *Event {
	event := NewEvent(EventTypeJobQueued)
	event.JobID = jobID
	event.Title = title
	event.Mode = mode
	event.Stage = "queued"
	event.QueuePosition = position
	return event
}

// NewJobProgressEvent creates a progress event for a running job
func NewJobProgressEvent(jobID, stage string, percent int, downloaded, total int64) *Event {
	event := NewEvent(EventTypeJobProgress)
	event.JobID = jobID
	event.Stage = stage
	event.Percent = percent
	event.DownloadedBytes = downloaded
	event.TotalBytes = total
	return event
}

// NewJobDoneEvent creates a terminal event carrying the outcome
func NewJobDoneEvent(jobID, outcome, errorMessage string) *Event {
	event := NewEvent(EventTypeJobDone)
	event.JobID = jobID
	event.Stage = outcome
	event.ErrorMessage = errorMessage
	return event
}
