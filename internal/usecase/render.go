package usecase

import (
	"fmt"
	"strings"

	"webchat/internal/domain"
)

// RenderStream concatenates fragments from ch in arrival order and shows
// the growing text on sink, followed by domain.Cursor while more may come.
// When ch is exhausted the final text is shown once without the cursor
// and returned; a domain.FinalSink receives it through Final.
//
// If a delta carries an error, RenderStream returns the text so far with
// that error and makes no further update: the sink keeps its last partial
// state. A failing sink stops receiving updates but ch is still drained;
// its error is returned only when the stream itself succeeded.
func RenderStream(sink domain.Sink, ch <-chan domain.StreamDelta) (string, error) {
	var acc strings.Builder
	var sinkErr error

	update := func(text string) {
		if sinkErr != nil {
			return
		}
		if err := sink.Update(text); err != nil {
			sinkErr = err
		}
	}

	for d := range ch {
		if d.Err != nil {
			// Drain so the producer can finish.
			for range ch {
			}
			return acc.String(), d.Err
		}
		acc.WriteString(d.Content)
		update(acc.String() + domain.Cursor)
	}

	text := acc.String()
	if fs, ok := sink.(domain.FinalSink); ok {
		if sinkErr == nil {
			sinkErr = fs.Final(text)
		}
	} else {
		update(text)
	}
	if sinkErr != nil {
		return text, fmt.Errorf("render: %w", sinkErr)
	}
	return text, nil
}
