package push

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies a category of server-pushed event. Handlers are registered
// per kind, so adding a kind here is the single place the vocabulary grows.
type Kind string

const (
	BusinessCreated     Kind = "business:created"
	BusinessEnriched    Kind = "business:enriched"
	EnrichmentCompleted Kind = "enrichment:completed"
	EnrichmentFailed    Kind = "enrichment:failed"
	ScrapingProgress    Kind = "scraping:progress"
	ScrapingCompleted   Kind = "scraping:completed"
	ScrapingFailed      Kind = "scraping:failed"
	StatsUpdated        Kind = "stats:updated"
)

// Kinds lists every event kind the hub can carry.
func Kinds() []Kind {
	return []Kind{
		BusinessCreated,
		BusinessEnriched,
		EnrichmentCompleted,
		EnrichmentFailed,
		ScrapingProgress,
		ScrapingCompleted,
		ScrapingFailed,
		StatsUpdated,
	}
}

// Valid reports whether k is part of the event vocabulary.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Event is the unit pushed over the channel. It signals that something
// changed; authoritative data is always refetched over REST. Data is kept as
// raw JSON so the hub never has to understand task-specific payloads.
type Event struct {
	Kind Kind            `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// NewEvent builds an event for the given kind, marshaling payload into Data.
// A nil payload produces an event with no data.
func NewEvent(kind Kind, payload any) (Event, error) {
	ev := Event{Kind: kind, At: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		ev.Data = data
	}
	return ev, nil
}

// Encode serializes the event to its wire format.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return b, nil
}

// DecodeEvent parses an event from its wire format. Events with an unknown
// kind are rejected so a misbehaving peer cannot register phantom kinds.
func DecodeEvent(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if !ev.Kind.Valid() {
		return Event{}, fmt.Errorf("unknown event kind: %s", ev.Kind)
	}
	return ev, nil
}
