package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JAMBAMSF/jagent/internal/failsafe"
	"github.com/JAMBAMSF/jagent/internal/fraud"
	"github.com/JAMBAMSF/jagent/internal/llm"
	"github.com/JAMBAMSF/jagent/internal/metrics"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
	"github.com/JAMBAMSF/jagent/internal/router"
)

// Side-effect replies.
const (
	ForgetReply          = "Your chats and portfolios have been deleted; saved payees/counterparties were retained."
	ForgetEphemeralReply = "Nothing to delete (ephemeral)."
	NoDatabaseReply      = "No database (ephemeral mode)."
	NoPayeesReply        = "No saved payees/counterparties."
)

// Reply is the answer to one utterance.
type Reply struct {
	Text  string      `json:"reply"`
	Route router.Kind `json:"route"`
	// Exit asks the front-end to end the session.
	Exit bool `json:"exit,omitempty"`
	// Refused marks compliance refusals.
	Refused bool `json:"refused,omitempty"`
}

// Session is one user's conversation. Not safe for concurrent use.
type Session struct {
	agent     *Agent
	user      string
	userID    int64
	channel   string
	tolerance string
	chat      failsafe.Chatter
	llmAgent  *llm.Agent
	closed    bool
	logger    zerolog.Logger
}

// User returns the session's user name.
func (s *Session) User() string { return s.user }

// Tolerance returns the current risk tolerance.
func (s *Session) Tolerance() string { return s.tolerance }

// Close releases the session.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	metrics.ActiveSessions.Dec()
}

// Handle answers one utterance. Errors never escape: failures surface as
// the catch-all text.
func (s *Session) Handle(ctx context.Context, text string) Reply {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}
	}

	a := s.agent
	if ok, refusal := a.guard.CheckInput(text); !ok {
		s.refused(ctx, "input", text)
		return Reply{Text: refusal, Refused: true}
	}

	d := a.router.Route(text)
	metrics.RecordRoute(string(d.Kind))
	s.publish(ctx, EventRoute, RouteEvent{User: s.user, Channel: s.channel, Route: string(d.Kind), Rule: d.Rule})

	s.logger.Debug().Str("route", string(d.Kind)).Str("rule", d.Rule).Msg("Routed utterance")

	reply := Reply{Route: d.Kind}
	switch d.Kind {
	case router.KindExit:
		reply.Text, reply.Exit = d.Reply, true
		return reply
	case router.KindHelp, router.KindUsage:
		reply.Text = d.Reply
		return reply
	case router.KindRiskInference, router.KindSetRisk:
		reply.Text = s.setRisk(ctx, d)
	case router.KindForgetMe:
		reply.Text = s.forget(ctx)
	case router.KindPayeeAdd:
		if a.store == nil {
			reply.Text = NoDatabaseReply
			return reply
		}
		reply.Text = s.addPayee(ctx, d.Arg)
	case router.KindPayeeList:
		if a.store == nil {
			reply.Text = NoDatabaseReply
			return reply
		}
		reply.Text = s.listPayees(ctx)
	default:
		out, refused := s.execute(ctx, d)
		if refused {
			reply.Text, reply.Refused = out, true
			return reply
		}
		reply.Text = out
	}

	reply.Text = s.nudge(reply.Text)
	return reply
}

// execute runs the tool route through the failsafe executor and the output
// guard.
func (s *Session) execute(ctx context.Context, d router.Decision) (string, bool) {
	a := s.agent
	var after func()

	var handlers []failsafe.Handler
	switch d.Kind {
	case router.KindPrice, router.KindImplicitPrice:
		handlers = []failsafe.Handler{func(ctx context.Context) (string, error) {
			return a.tools.StockQuery(ctx, d.Arg)
		}}
	case router.KindAnalyze, router.KindImplicitAllocation:
		var report *portfolio.Report
		handlers = []failsafe.Handler{func(ctx context.Context) (string, error) {
			r, err := a.tools.AnalyzePortfolio(ctx, d.Arg, s.tolerance)
			if err != nil {
				return "", err
			}
			report = r
			return r.String(), nil
		}}
		after = func() { s.savePortfolio(ctx, report) }
	case router.KindFraud:
		known, history := s.fraudContext(ctx)
		var (
			tx      fraud.Transaction
			verdict fraud.Verdict
			valid   bool
		)
		handlers = []failsafe.Handler{func(context.Context) (string, error) {
			var text string
			tx, verdict, text, valid = a.tools.FraudCheck(d.Arg, known, history)
			return text, nil
		}}
		after = func() {
			if valid {
				s.recordScreen(ctx, tx, verdict)
			}
		}
	case router.KindSentiment:
		handlers = []failsafe.Handler{func(context.Context) (string, error) {
			return a.tools.SentimentOf(d.Arg), nil
		}}
	case router.KindNews:
		handlers = []failsafe.Handler{func(ctx context.Context) (string, error) {
			return a.tools.NewsHeadlines(ctx, d.Arg)
		}}
	}

	res := a.executor.Run(ctx, failsafe.Request{
		Question: d.Question,
		Context:  string(d.Kind),
		Handlers: handlers,
	}, s.chat)
	if res.Outcome == failsafe.OutcomeHandler && after != nil {
		after()
	}

	text := res.Text
	if isFallback(text) {
		return text, false
	}
	ok, out := a.guard.CheckOutput(text)
	if !ok {
		s.refused(ctx, "output", text)
		return out, true
	}
	if d.Final && a.cfg.FinalSuffix {
		out = strings.TrimRight(out, " \n") + "\n\n" + FinalSuffix
	}
	return out, false
}

// isFallback reports whether text is the fixed failure answer, which is
// shown without a disclaimer.
func isFallback(text string) bool {
	return text == failsafe.FallbackMessage
}

func (s *Session) setRisk(ctx context.Context, d router.Decision) string {
	a := s.agent
	old, tol := s.tolerance, d.Tolerance
	source := "command"
	if d.Kind == router.KindRiskInference {
		source = "natural_language"
	}

	if a.store != nil {
		if err := a.store.SetRiskTolerance(ctx, s.userID, tol); err != nil {
			s.logger.Error().Err(err).Str("tolerance", tol).Msg("Failed to set risk tolerance")
			return llm.CatchAll
		}
	}
	s.tolerance = tol
	s.auditErr(a.audit != nil, func() error {
		return a.audit.LogRiskChange(ctx, s.auditUser(), s.channel, old, tol, source)
	})

	switch {
	case d.Kind == router.KindRiskInference:
		return fmt.Sprintf("Set risk tolerance to %s (from natural language).", tol)
	case a.store == nil:
		return fmt.Sprintf("Risk tolerance set (ephemeral): %s", tol)
	default:
		return fmt.Sprintf("Set risk tolerance to %s.", tol)
	}
}

func (s *Session) forget(ctx context.Context) string {
	a := s.agent
	if a.store == nil {
		s.tolerance = portfolio.DefaultTolerance
		return ForgetEphemeralReply
	}

	err := a.store.ForgetUser(ctx, s.userID)
	s.auditErr(a.audit != nil, func() error {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		return a.audit.LogErasure(ctx, s.auditUser(), s.channel, err == nil, msg)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to forget user")
		return llm.CatchAll
	}

	s.tolerance = portfolio.DefaultTolerance
	if s.llmAgent != nil {
		s.llmAgent.Memory().Clear()
	}
	return ForgetReply
}

func (s *Session) addPayee(ctx context.Context, name string) string {
	a := s.agent
	if err := a.store.UpsertCounterparty(ctx, s.userID, name); err != nil {
		s.logger.Error().Err(err).Str("counterparty", name).Msg("Failed to add counterparty")
		return llm.CatchAll
	}
	s.auditErr(a.audit != nil, func() error {
		return a.audit.LogCounterpartyAdded(ctx, s.auditUser(), s.channel, name)
	})
	return "Added/updated payee/counterparty: " + name
}

func (s *Session) listPayees(ctx context.Context) string {
	names, err := s.agent.store.ListCounterparties(ctx, s.userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list counterparties")
		return llm.CatchAll
	}
	if len(names) == 0 {
		return NoPayeesReply
	}
	return "Saved payees/counterparties:\n- " + strings.Join(names, "\n- ")
}

// fraudContext loads the known counterparties and amount history. Failures
// degrade to an empty context.
func (s *Session) fraudContext(ctx context.Context) ([]string, map[string][]float64) {
	store := s.agent.store
	if store == nil {
		return nil, nil
	}
	known, err := store.ListCounterparties(ctx, s.userID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load counterparties for fraud screen")
		known = nil
	}
	history, err := store.AmountHistory(ctx, s.userID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load amount history for fraud screen")
		history = nil
	}
	return known, history
}

func (s *Session) recordScreen(ctx context.Context, tx fraud.Transaction, v fraud.Verdict) {
	a := s.agent
	flags := make([]string, len(v.Flags))
	for i, f := range v.Flags {
		flags[i] = string(f)
	}
	metrics.RecordFraudScreen(v.Suspicious, flags)

	if a.store != nil {
		if err := a.store.RecordTransaction(ctx, s.userID, tx, v); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record transaction")
		}
	}
	if !v.Suspicious {
		return
	}
	s.auditErr(a.audit != nil, func() error {
		return a.audit.LogFraudFlag(ctx, s.auditUser(), s.channel, tx.Counterparty, tx.Amount, flags)
	})
	s.publish(ctx, EventFraud, FraudEvent{
		User:         s.user,
		Channel:      s.channel,
		Counterparty: tx.Counterparty,
		Amount:       tx.Amount,
		Hour:         tx.Hour,
		Flags:        flags,
	})
}

func (s *Session) savePortfolio(ctx context.Context, r *portfolio.Report) {
	store := s.agent.store
	if store == nil || r == nil {
		return
	}
	if err := store.SavePortfolio(ctx, s.userID, r.Allocation.Map(), r.Metrics); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save portfolio snapshot")
	}
}

func (s *Session) refused(ctx context.Context, direction, text string) {
	a := s.agent
	metrics.RecordComplianceRefusal(direction)
	phrase, _ := a.guard.Match(text)
	s.auditErr(a.audit != nil, func() error {
		return a.audit.LogComplianceRefusal(ctx, s.auditUser(), s.channel, direction, phrase)
	})
}

func (s *Session) publish(ctx context.Context, kind string, payload interface{}) {
	if s.agent.events == nil {
		return
	}
	if err := s.agent.events.Publish(ctx, kind, payload); err != nil {
		s.logger.Debug().Err(err).Str("kind", kind).Msg("Event publish failed")
	}
}

// auditErr runs fn when enabled and logs its error. Audit failures never
// change a reply.
func (s *Session) auditErr(enabled bool, fn func() error) {
	if !enabled {
		return
	}
	if err := fn(); err != nil {
		s.logger.Warn().Err(err).Msg("Audit log failed")
	}
}

func (s *Session) auditUser() string {
	if s.userID == 0 {
		return s.user
	}
	return strconv.FormatInt(s.userID, 10)
}

// nudge appends NudgeText unless the reply already ends with a question.
func (s *Session) nudge(text string) string {
	if !s.agent.cfg.Nudge || text == "" || endsWithQuestion(text) {
		return text
	}
	return text + "\n\n" + NudgeText
}

func endsWithQuestion(text string) bool {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return strings.HasSuffix(line, "?") || strings.HasSuffix(line, "？")
		}
	}
	return false
}
