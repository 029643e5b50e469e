package llm

import (
	"context"

	"webchat/internal/domain"
)

// fakeProvider is a scriptable domain.StreamingLLMProvider.
type fakeProvider struct {
	name       string
	chatFunc   func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
	streamFunc func(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error)

	lastReq domain.ChatRequest
	calls   int
}

func (f *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.lastReq = req
	f.calls++
	if f.chatFunc == nil {
		return &domain.ChatResponse{}, nil
	}
	return f.chatFunc(ctx, req)
}

func (f *fakeProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	f.lastReq = req
	f.calls++
	if f.streamFunc == nil {
		ch := make(chan domain.StreamDelta)
		close(ch)
		return ch, nil
	}
	return f.streamFunc(ctx, req)
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

// deltas returns a closed channel carrying ds in order.
func deltas(ds ...domain.StreamDelta) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, len(ds))
	for _, d := range ds {
		ch <- d
	}
	close(ch)
	return ch
}
