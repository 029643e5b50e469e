package domain

// Cursor is appended to partial text while a reply is still streaming.
const Cursor = "▌"

// Sink is a presentation surface that displays the text of the reply
// currently being generated. Each Update replaces what was shown before.
type Sink interface {
	Update(text string) error
}

// FinalSink is a Sink told explicitly that the reply is complete. The
// renderer calls Final instead of the last Update, so the sink never has
// to guess completion from the text.
type FinalSink interface {
	Sink
	Final(text string) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(text string) error

// Update implements Sink.
func (f SinkFunc) Update(text string) error { return f(text) }

// StreamUpdatePayload is the payload of the "stream.update" gateway event.
type StreamUpdatePayload struct {
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Pending bool   `json:"pending,omitempty"`
}
