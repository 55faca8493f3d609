package push_test

import (
	"encoding/json"
	"testing"

	"leadgrid/src/push"
)

func TestEventRoundTrip(t *testing.T) {
	ev, err := push.NewEvent(push.ScrapingProgress, map[string]any{
		"jobId":    "j1",
		"progress": 40,
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	data, err := ev.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := push.DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if got.Kind != push.ScrapingProgress {
		t.Errorf("Kind = %q, want %q", got.Kind, push.ScrapingProgress)
	}

	var payload struct {
		JobID    string `json:"jobId"`
		Progress int    `json:"progress"`
	}
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.JobID != "j1" || payload.Progress != 40 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestNewEventNilPayload(t *testing.T) {
	ev, err := push.NewEvent(push.StatsUpdated, nil)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if ev.Data != nil {
		t.Errorf("Data = %s, want empty", ev.Data)
	}
	if ev.At.IsZero() {
		t.Error("At not set")
	}
}

func TestDecodeEventUnknownKind(t *testing.T) {
	_, err := push.DecodeEvent([]byte(`{"event":"nonsense:kind","at":"2026-08-01T00:00:00Z"}`))
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	_, err := push.DecodeEvent([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for malformed event")
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range push.Kinds() {
		if !k.Valid() {
			t.Errorf("Kind %q reported invalid", k)
		}
	}
	if push.Kind("made:up").Valid() {
		t.Error("made-up kind reported valid")
	}
}
