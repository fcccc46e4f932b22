package failsafe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/llm"
	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// FallbackMessage is returned when the chat capability itself fails. It is
// the same text the planner gives, so users see one failure answer.
const FallbackMessage = llm.CatchAll

const excerptLen = 200

var errLowQuality = errors.New("tool-low-quality-output")

// Handler is one deterministic attempt at answering a request.
type Handler func(ctx context.Context) (string, error)

// Chatter is the language-model capability.
type Chatter interface {
	Chat(ctx context.Context, question string) (string, error)
}

// ChatFunc adapts a function to Chatter.
type ChatFunc func(ctx context.Context, question string) (string, error)

// Chat implements Chatter.
func (f ChatFunc) Chat(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// Outcome values reported in Result.
const (
	OutcomeHandler      = "handler"
	OutcomeChat         = "chat"
	OutcomeChatFailed   = "chat_failed"
	OutcomeNoChatBackup = "no_chat"
)

// Result is the answer plus how it was produced.
type Result struct {
	Text    string
	Outcome string
	// Handler is the index of the handler that answered, or -1.
	Handler int
	// Failures counts handlers that failed before the answer.
	Failures int
}

// Request describes one executor run.
type Request struct {
	Question string
	// Context labels the request in logs and metrics (e.g. the route name).
	Context  string
	Handlers []Handler
}

// Executor applies the quality gate to handler output.
type Executor struct {
	gate    *gate
	verbose bool
	logger  zerolog.Logger
}

// NewExecutor compiles the policy.
func NewExecutor(p Policy) (*Executor, error) {
	g, err := newGate(p)
	if err != nil {
		return nil, err
	}
	return &Executor{
		gate:    g,
		verbose: p.Verbose,
		logger:  log.With().Str("component", "failsafe").Logger(),
	}, nil
}

// MustExecutor is NewExecutor for policies known to compile.
func MustExecutor(p Policy) *Executor {
	e, err := NewExecutor(p)
	if err != nil {
		panic(err)
	}
	return e
}

// LooksBroken reports whether output fails the quality gate.
func (e *Executor) LooksBroken(output string) bool {
	return e.gate.broken(output)
}

// Run tries each handler once, in order, returning the first output that
// passes the quality gate. When every handler fails the question goes to chat
// exactly once and its reply is returned verbatim.
func (e *Executor) Run(ctx context.Context, req Request, chat Chatter) Result {
	start := time.Now()
	failures := 0

	for i, h := range req.Handlers {
		out, err := e.try(ctx, h)
		if err == nil {
			metrics.RecordFailsafeOutcome(req.Context, OutcomeHandler, time.Since(start))
			return Result{Text: out, Outcome: OutcomeHandler, Handler: i, Failures: failures}
		}
		failures++
		e.logFailure(req.Context, i, out, err)
	}

	res := Result{Handler: -1, Failures: failures}
	switch {
	case chat == nil:
		res.Text, res.Outcome = FallbackMessage, OutcomeNoChatBackup
	default:
		reply, err := e.chat(ctx, chat, req.Question)
		if err != nil {
			e.logger.Warn().Err(err).Str("context", req.Context).Msg("Chat fallback failed")
			res.Text, res.Outcome = FallbackMessage, OutcomeChatFailed
		} else {
			res.Text, res.Outcome = reply, OutcomeChat
		}
	}
	metrics.RecordFailsafeOutcome(req.Context, res.Outcome, time.Since(start))
	return res
}

func (e *Executor) try(ctx context.Context, h Handler) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if h == nil {
		return "", errors.New("nil handler")
	}
	out, err = h(ctx)
	if err != nil {
		return out, err
	}
	if e.gate.broken(out) {
		return out, errLowQuality
	}
	return out, nil
}

func (e *Executor) chat(ctx context.Context, chat Chatter, question string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat panic: %v", r)
		}
	}()
	return chat.Chat(ctx, question)
}

func (e *Executor) logFailure(label string, index int, out string, err error) {
	msg := "Tool handler failed"
	if errors.Is(err, errLowQuality) {
		msg = "Failsafe flagged tool output"
	}
	if !e.verbose {
		e.logger.Debug().Err(err).Str("context", label).Int("handler", index).Msg(msg)
		return
	}
	if len(out) > excerptLen {
		out = out[:excerptLen]
	}
	e.logger.Error().Err(err).Str("context", label).Int("handler", index).Str("output", out).Msg(msg)
}
