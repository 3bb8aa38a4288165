// Package chat orchestrates conversation turns: it streams model output to
// the caller, reassembles tool calls, runs them, and feeds the results back
// to the model until it produces a final answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/reviewly/reviewly/internal/catalog"
	"github.com/reviewly/reviewly/internal/llm"
	"github.com/reviewly/reviewly/internal/session"
	"github.com/reviewly/reviewly/internal/tool"
)

// DefaultMaxToolRounds bounds the completion/tool loop of one turn.
const DefaultMaxToolRounds = 8

// Sentinel errors for orchestration.
var (
	// ErrEmptyPrompt indicates the request carried no prompt text.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrToolRoundsExceeded indicates the model kept requesting tools past
	// the round ceiling.
	ErrToolRoundsExceeded = errors.New("tool rounds exceeded")
)

// Streamer opens a streaming completion. Satisfied by *llm.Client.
type Streamer interface {
	Stream(ctx context.Context, req llm.ChatRequest) (*llm.Stream, error)
}

// ToolRunner executes assembled tool calls. Satisfied by *tool.Dispatcher.
type ToolRunner interface {
	Dispatch(ctx context.Context, sess *session.Session, call llm.ToolCall) (tool.Result, error)
}

// Products loads catalog entries for product binding.
type Products interface {
	Product(ctx context.Context, id int64) (catalog.Product, error)
}

// Config contains all required parameters for the Orchestrator.
type Config struct {
	Client   Streamer
	Tools    ToolRunner
	Products Products
	Logger   *slog.Logger

	// Model is the default chat model; AskRequest.Model overrides per turn.
	Model       string
	Temperature float32
	TopP        float32

	// MaxToolRounds bounds upstream requests per turn (0 = default).
	MaxToolRounds int
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	if cfg.Tools == nil {
		return errors.New("tool runner is required")
	}
	if cfg.Products == nil {
		return errors.New("products is required")
	}
	if cfg.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// AskRequest is one user turn.
type AskRequest struct {
	// Prompt is the user's message. Required.
	Prompt string

	// ProductID, when set, binds the session to this product before the
	// turn runs; review questions then target it directly.
	ProductID *int64

	// Model overrides the configured chat model for this turn.
	Model string
}

// Orchestrator runs conversation turns against a session.
// Configuration is captured immutably at construction time, so a single
// Orchestrator is safe for concurrent use across sessions.
type Orchestrator struct {
	client    Streamer
	tools     ToolRunner
	products  Products
	logger    *slog.Logger
	model     string
	temp      float32
	topP      float32
	maxRounds int
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	return &Orchestrator{
		client:    cfg.Client,
		tools:     cfg.Tools,
		products:  cfg.Products,
		logger:    logger,
		model:     cfg.Model,
		temp:      cfg.Temperature,
		topP:      cfg.TopP,
		maxRounds: maxRounds,
	}, nil
}

// Ask runs one user turn. Assistant text streams out as delta events; tool
// activity surfaces as status and additional_data events. A turn that needs
// no tools emits nothing but deltas.
//
// The transcript grows append-only: the user message, then per round one
// assistant message (text and/or tool calls) and one tool message per call.
// On error, everything appended so far stays; the caller may retry with a
// fresh prompt.
func (o *Orchestrator) Ask(ctx context.Context, sess *session.Session, req AskRequest, emit EmitFunc) error {
	if req.Prompt == "" {
		return ErrEmptyPrompt
	}

	ctx, span := otel.Tracer("reviewly/chat").Start(ctx, "chat.turn")
	defer span.End()

	if req.ProductID != nil {
		product, err := o.products.Product(ctx, *req.ProductID)
		if err != nil {
			// An unresolvable id does not end the turn; the session simply
			// stays unbound and the model asks or searches on its own.
			o.logger.Warn("product binding skipped", "product_id", *req.ProductID, "error", err)
		} else {
			sess.SetActiveProduct(&product)
			o.appendBindingNote(sess, product)
		}
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	sess.Append(llm.Message{Role: llm.RoleUser, Content: req.Prompt})

	for round := 1; round <= o.maxRounds; round++ {
		finished, err := o.runRound(ctx, sess, model, round, emit)
		if err != nil {
			return o.fail(emit, err)
		}
		if finished {
			return nil
		}
	}

	o.logger.Warn("turn exceeded tool round ceiling",
		"session_id", sess.ID,
		"max_rounds", o.maxRounds)
	return o.fail(emit, fmt.Errorf("%w: %d rounds", ErrToolRoundsExceeded, o.maxRounds))
}

func (o *Orchestrator) appendBindingNote(sess *session.Session, product catalog.Product) {
	sess.Append(llm.Message{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf("The customer is now looking at %q (%s, $%.2f). Questions about reviews refer to this product unless they say otherwise.",
			product.Name, product.Category, product.Price),
	})
}

// runRound performs one completion request and, if the model asked for
// tools, runs them. Returns true when the model finished its answer.
func (o *Orchestrator) runRound(ctx context.Context, sess *session.Session, model string, round int, emit EmitFunc) (bool, error) {
	stream, err := o.client.Stream(ctx, llm.ChatRequest{
		Model:             model,
		Messages:          sess.Messages(),
		Tools:             tool.Specs(sess.Privileged, sess.ActiveProduct() != nil),
		Temperature:       o.temp,
		TopP:              o.topP,
		RepetitionPenalty: 1,
	})
	if err != nil {
		return false, fmt.Errorf("opening completion stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var content strings.Builder
	acc := llm.NewAccumulator()
	finish := ""

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, fmt.Errorf("reading completion stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if err := emit(Event{Type: EventDelta, Text: choice.Delta.Content}); err != nil {
				return false, fmt.Errorf("emitting delta: %w", err)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc.Add(tc)
		}
		if choice.FinishReason != nil {
			finish = *choice.FinishReason
		}
	}

	assistant := llm.Message{
		Role:      llm.RoleAssistant,
		Content:   content.String(),
		ToolCalls: acc.Calls(),
	}
	sess.Append(assistant)

	// Some providers omit finish_reason on truncated streams; the presence
	// of assembled calls is what actually decides the branch.
	if acc.Empty() && finish != llm.FinishToolCalls {
		o.logger.Debug("turn completed",
			"session_id", sess.ID,
			"rounds", round,
			"chars", content.Len())
		return true, nil
	}

	for _, call := range assistant.ToolCalls {
		if err := emit(Event{Type: EventStatus, Text: call.Function.Name}); err != nil {
			return false, fmt.Errorf("emitting status: %w", err)
		}

		result, err := o.tools.Dispatch(ctx, sess, call)
		if err != nil {
			return false, fmt.Errorf("running %s: %w", call.Function.Name, err)
		}

		if result.AdditionalData != nil {
			if err := emit(Event{Type: EventAdditionalData, Data: result.AdditionalData}); err != nil {
				return false, fmt.Errorf("emitting additional data: %w", err)
			}
		}

		sess.Append(llm.Message{
			Role:       llm.RoleTool,
			Content:    result.ResponseText,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
		})
	}

	return false, nil
}

// fail emits an error event (best-effort) and returns err.
func (o *Orchestrator) fail(emit EmitFunc, err error) error {
	_ = emit(Event{Type: EventError, Text: err.Error()})
	return err
}
