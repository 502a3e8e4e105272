package protocol

import (
	"encoding/json"
	"time"
)

// EventType names a step of a narration job.
type EventType string

const (
	EventStarted   EventType = "started"
	EventSegment   EventType = "segment"
	EventAssembled EventType = "assembled"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// SubjectJobPrefix is the bus subject prefix; events are published on
// narrator.job.<type>.
const SubjectJobPrefix = "narrator.job"

// Subject returns the bus subject for t.
func Subject(t EventType) string {
	return SubjectJobPrefix + "." + string(t)
}

// JobEvent is one progress report for a job.
type JobEvent struct {
	JobID     string          `json:"job_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Started is reported once segmentation is done.
type Started struct {
	Source   string `json:"source,omitempty"`
	Voice    string `json:"voice"`
	Segments int    `json:"segments"`
}

// Segment is reported after each successful synthesis call.
type Segment struct {
	Index int `json:"index"`
	Total int `json:"total"`
	Bytes int `json:"bytes"`
}

// Assembled is reported once every part is written.
type Assembled struct {
	Parts    int     `json:"parts"`
	Duration float64 `json:"duration_s"`
}

// Completed is reported when the deliverable is ready.
type Completed struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
}

// Failed is reported when the run aborts.
type Failed struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

// NewJobEvent encodes payload into an event stamped with now.
func NewJobEvent(jobID string, t EventType, payload any) (JobEvent, error) {
	evt := JobEvent{JobID: jobID, Type: t, Timestamp: time.Now().UTC()}
	if payload == nil {
		return evt, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return evt, err
	}
	evt.Payload = data
	return evt, nil
}
