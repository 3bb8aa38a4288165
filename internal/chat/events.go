package chat

// EventType discriminates the events emitted during a turn.
type EventType string

const (
	// EventDelta carries a fragment of assistant text, in arrival order.
	EventDelta EventType = "delta"

	// EventStatus announces that a tool is about to run.
	EventStatus EventType = "status"

	// EventAdditionalData carries a tool's out-of-band payload (product
	// cards, heatmap points). Never part of the transcript.
	EventAdditionalData EventType = "additional_data"

	// EventError reports a failed turn. Always the last event when present.
	EventError EventType = "error"
)

// Event is one item of the turn's output stream.
type Event struct {
	Type EventType      `json:"type"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// EmitFunc receives events as the turn produces them. Returning an error
// aborts the turn; the orchestrator stops streaming and reports the error.
type EmitFunc func(Event) error
