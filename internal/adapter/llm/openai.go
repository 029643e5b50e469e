package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	"webchat/internal/domain"
	"webchat/internal/infra/config"
	"webchat/internal/infra/tracer"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements domain.StreamingLLMProvider for any
// OpenAI-compatible chat-completions API.
type OpenAIProvider struct {
	name   string
	model  string
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIProvider creates a provider with configured timeouts and pooling.
func NewOpenAIProvider(cfg config.LLMConfig, logger *slog.Logger) *OpenAIProvider {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if oc.BaseURL == "" {
		oc.BaseURL = defaultBaseURL
	}
	oc.HTTPClient = NewHTTPClient(cfg)

	return &OpenAIProvider{
		name:   "openai",
		model:  cfg.Model,
		client: openai.NewClientWithConfig(oc),
		logger: logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.chat", p.spanAttrs(req))
	defer span.End()

	resp, err := p.client.CreateChatCompletion(ctx, toOpenAIRequest(req, false))
	if err != nil {
		err = mapProviderError(err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		tracer.RecordError(span, domain.ErrEmptyCompletion)
		return nil, domain.ErrEmptyCompletion
	}

	result := fromOpenAIResponse(resp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// ChatStream implements domain.StreamingLLMProvider. The request is sent
// before ChatStream returns, so HTTP-level failures (bad key, rate limit)
// come back as the error; failures after that arrive on the channel.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.stream", p.spanAttrs(req))

	stream, err := p.client.CreateChatCompletionStream(ctx, toOpenAIRequest(req, true))
	if err != nil {
		err = mapProviderError(err)
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}

	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer span.End()
		defer stream.Close()

		fragments := 0
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				span.SetAttributes(tracer.IntAttr("llm.fragments", fragments))
				tracer.SetOK(span)
				return
			}
			if err != nil {
				err = mapProviderError(err)
				tracer.RecordError(span, err)
				select {
				case ch <- domain.StreamDelta{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			delta := fromStreamResponse(resp)
			if delta.Content == "" && !delta.Done && delta.Usage == nil {
				continue // role-only or empty keep-alive chunk
			}
			if delta.Content != "" {
				fragments++
			}

			select {
			case ch <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) spanAttrs(req domain.ChatRequest) trace.SpanStartOption {
	return trace.WithAttributes(
		tracer.StringAttr("llm.provider", p.name),
		tracer.StringAttr("llm.model", req.Model),
		tracer.Float64Attr("llm.temperature", req.Temperature),
		tracer.IntAttr("llm.messages", len(req.Messages)),
	)
}

// toOpenAIRequest converts a domain request. The SDK omits a zero
// temperature from the JSON body, which the API would read as its default
// of 1, so zero is sent as the smallest positive float32 instead.
func toOpenAIRequest(req domain.ChatRequest, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	temp := float32(req.Temperature)
	if temp <= 0 {
		temp = math.SmallestNonzeroFloat32
	}

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: temp,
		Stream:      stream,
	}
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *domain.ChatResponse {
	created := time.Unix(resp.Created, 0)
	result := &domain.ChatResponse{
		ID:        resp.ID,
		Model:     resp.Model,
		Usage:     fromOpenAIUsage(resp.Usage),
		CreatedAt: created,
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		role := choice.Message.Role
		if role == "" {
			role = domain.RoleAssistant
		}
		result.Message = domain.Message{
			Role:      role,
			Content:   choice.Message.Content,
			Timestamp: created,
		}
	}
	return result
}

func fromStreamResponse(resp openai.ChatCompletionStreamResponse) domain.StreamDelta {
	var delta domain.StreamDelta
	if len(resp.Choices) > 0 {
		c := resp.Choices[0]
		delta.Content = c.Delta.Content
		delta.Done = c.FinishReason != ""
	}
	if resp.Usage != nil {
		u := fromOpenAIUsage(*resp.Usage)
		delta.Usage = &u
	}
	return delta
}

// Compile-time interface check.
var _ domain.StreamingLLMProvider = (*OpenAIProvider)(nil)
