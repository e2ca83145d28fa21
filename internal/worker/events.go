package worker

import (
	"encoding/json"
	"time"
)

// EventKind classifies the structured events a worker emits on stdout, one
// JSON object per line. The set is closed; kinds introduced by newer agent
// versions normalize to EventUnknown instead of breaking the stream.
type EventKind string

const (
	EventSystem    EventKind = "system"
	EventAssistant EventKind = "assistant"
	EventToolUse   EventKind = "tool_use"
	EventProgress  EventKind = "progress"
	EventResult    EventKind = "result"
	// EventSignal is synthesized by the signal watcher when the worker
	// writes its advisory completion-signal file. Never emitted on stdout.
	EventSignal  EventKind = "signal"
	EventUnknown EventKind = "unknown"
)

var knownEventKinds = map[EventKind]struct{}{
	EventSystem:    {},
	EventAssistant: {},
	EventToolUse:   {},
	EventProgress:  {},
	EventResult:    {},
	EventSignal:    {},
}

// Event is one structured line of worker output. Raw retains the original
// JSON so observers can extract fields this version does not model.
type Event struct {
	Kind       EventKind       `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// rawEvent is the wire shape of a worker stdout line.
type rawEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Text    string `json:"text,omitempty"`
	Result  string `json:"result,omitempty"`
}

// parseEvent decodes one stdout line into an Event. The second return is
// false for malformed lines, which callers skip (and count) rather than
// treat as fatal.
func parseEvent(line []byte) (Event, bool) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, false
	}
	if raw.Type == "" {
		return Event{}, false
	}

	kind := EventKind(raw.Type)
	if _, ok := knownEventKinds[kind]; !ok {
		kind = EventUnknown
	}

	text := raw.Text
	if text == "" {
		text = raw.Result
	}

	return Event{
		Kind:       kind,
		Text:       text,
		Raw:        append(json.RawMessage(nil), line...),
		ReceivedAt: time.Now(),
	}, true
}

// CompletionSignal is the advisory status a worker may report by writing a
// signal file before exiting. The orchestrator never treats it as proof of
// success; only gate results grant completion.
type CompletionSignal struct {
	PhaseID    string    `json:"phase_id"`
	Status     string    `json:"status"` // "completed", "blocked", or "failed"
	Reason     string    `json:"reason,omitempty"`
	SignaledAt time.Time `json:"signaled_at"`
}
