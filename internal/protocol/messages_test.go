package protocol

import (
	"encoding/json"
	"testing"
)

func TestSubject(t *testing.T) {
	if got := Subject(EventSegment); got != "narrator.job.segment" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestNewJobEventPayload(t *testing.T) {
	evt, err := NewJobEvent("job-1", EventAssembled, Assembled{Parts: 2, Duration: 6.5})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if evt.Timestamp.IsZero() {
		t.Fatalf("expected timestamp")
	}
	var got Assembled
	if err := json.Unmarshal(evt.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Parts != 2 || got.Duration != 6.5 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestNewJobEventWithoutPayload(t *testing.T) {
	evt, err := NewJobEvent("job-1", EventCompleted, nil)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if evt.Payload != nil {
		t.Fatalf("expected empty payload, got %s", evt.Payload)
	}
}
