// Package agent wires the assistant pipeline: compliance input check, request
// routing, side effects, failsafe tool execution with chat fallback,
// compliance output check.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/compliance"
	"github.com/JAMBAMSF/jagent/internal/failsafe"
	"github.com/JAMBAMSF/jagent/internal/llm"
	"github.com/JAMBAMSF/jagent/internal/metrics"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
	"github.com/JAMBAMSF/jagent/internal/router"
)

// Closing lines appended to replies.
const (
	FinalSuffix = "I liked your questions very much. What else can I help with?"
	NudgeText   = "I liked your question. What else can I help?"
)

// ErrNoTools is returned by New when the toolbox is missing.
var ErrNoTools = errors.New("agent: toolbox is required")

// Config tunes session behavior.
type Config struct {
	DefaultUser      string
	DefaultTolerance string
	// FinalSuffix appends FinalSuffix to implicit price answers.
	FinalSuffix bool
	// Nudge appends NudgeText to replies that do not end with a question.
	Nudge      bool
	MaxSteps   int
	MaxRetries int
	// MemoryMessages bounds the per-session chat history.
	MemoryMessages int
}

// DefaultConfig returns the CLI defaults.
func DefaultConfig() Config {
	return Config{
		DefaultUser:      "Jack Alltrades",
		DefaultTolerance: portfolio.DefaultTolerance,
		FinalSuffix:      true,
		Nudge:            true,
		MaxSteps:         llm.DefaultMaxSteps,
	}
}

// Deps are the agent's collaborators. Only Tools is required.
type Deps struct {
	Tools    *Toolbox
	Router   *router.Router
	Executor *failsafe.Executor
	Guard    *compliance.Guard
	// LLM is nil when no model is configured; chat then answers offline.
	LLM    llm.LLMClient
	Store  Store
	Audit  Auditor
	Events Publisher
}

// Agent builds sessions over shared collaborators. It is safe for
// concurrent use; sessions are not.
type Agent struct {
	tools    *Toolbox
	router   *router.Router
	executor *failsafe.Executor
	guard    *compliance.Guard
	llm      llm.LLMClient
	store    Store
	audit    Auditor
	events   Publisher
	cfg      Config
	logger   zerolog.Logger
}

// New creates an agent. Missing optional collaborators get defaults.
func New(deps Deps, cfg Config) (*Agent, error) {
	if deps.Tools == nil {
		return nil, ErrNoTools
	}
	if deps.Router == nil {
		deps.Router = router.New()
	}
	if deps.Executor == nil {
		deps.Executor = failsafe.MustExecutor(failsafe.DefaultPolicy())
	}
	if deps.Guard == nil {
		deps.Guard = compliance.NewGuard()
	}
	if cfg.DefaultTolerance == "" {
		cfg.DefaultTolerance = portfolio.DefaultTolerance
	}
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = DefaultConfig().DefaultUser
	}

	return &Agent{
		tools:    deps.Tools,
		router:   deps.Router,
		executor: deps.Executor,
		guard:    deps.Guard,
		llm:      deps.LLM,
		store:    deps.Store,
		audit:    deps.Audit,
		events:   deps.Events,
		cfg:      cfg,
		logger:   log.With().Str("component", "agent").Logger(),
	}, nil
}

// Ephemeral reports whether the agent runs without persistence.
func (a *Agent) Ephemeral() bool {
	return a.store == nil
}

// Offline reports whether chat runs without a language model.
func (a *Agent) Offline() bool {
	return a.llm == nil
}

// Tools returns the shared toolbox.
func (a *Agent) Tools() *Toolbox {
	return a.tools
}

// NewSession opens a session for user on channel (cli, api, ws, telegram).
// An empty user means the configured default user.
func (a *Agent) NewSession(ctx context.Context, user, channel string) (*Session, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		user = a.cfg.DefaultUser
	}

	s := &Session{
		agent:     a,
		user:      user,
		channel:   channel,
		tolerance: a.cfg.DefaultTolerance,
		logger:    a.logger.With().Str("user", user).Str("channel", channel).Logger(),
	}

	if a.store != nil {
		id, tol, err := a.store.EnsureUser(ctx, user, a.cfg.DefaultTolerance)
		if err != nil {
			return nil, fmt.Errorf("failed to load user %q: %w", user, err)
		}
		s.userID = id
		if tol != "" {
			s.tolerance = tol
		}
	}

	s.chat = a.newChat(s)
	metrics.ActiveSessions.Inc()
	return s, nil
}

// newChat builds the session's chat capability.
func (a *Agent) newChat(s *Session) failsafe.Chatter {
	if a.llm == nil {
		return failsafe.ChatFunc(func(context.Context, string) (string, error) {
			return llm.CatchAll, nil
		})
	}
	s.llmAgent = llm.NewAgent(a.llm, s.llmTools(), llm.AgentConfig{
		MaxSteps:   a.cfg.MaxSteps,
		MaxRetries: a.cfg.MaxRetries,
		Guard:      a.guard,
		Memory: llm.ConversationConfig{
			Owner:       s.user,
			MaxMessages: a.cfg.MemoryMessages,
		},
	})
	return s.llmAgent
}
