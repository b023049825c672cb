package handoffs

import (
	"context"
	"errors"
	"strings"
	"time"

	apierrors "codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/internal/metrics"
	"codeberg.org/touchpath/server/internal/strategy"
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/google/uuid"
)

// metrics label for completions no strategy could match
const unmatched = "unmatched"

// records the server-side touch for a matched completion
type CompletionRecorder interface {
	RecordServerSide(
		ctx context.Context,
		visitorID string,
		touchType touches.Type,
		contextID string,
		at time.Time,
		extra map[string]any,
	) (*touches.Touch, error)
}

// finds the handoff a completion belongs to; nil or ErrHandoffNotFound means no hit
type MatchFunc func(ctx context.Context, c *Completion) (*Handoff, error)

// fired after a completion is linked to a handoff
type MatchListener func(ctx context.Context, c *Completion, h *Handoff) error

type matchAttempt struct {
	ctx        context.Context
	completion *Completion
	handoff    *Handoff
}

type matchedEvent struct {
	ctx        context.Context
	completion *Completion
	handoff    *Handoff
}

// links externally reported completions back to handoffs
type Matcher struct {
	tracker     *Tracker
	handoffs    Repository
	completions CompletionRepository
	emails      EmailIndex
	recorder    CompletionRecorder
	metrics     *metrics.Metrics
	strategies  *strategy.Registry[*matchAttempt]
	listeners   *strategy.Registry[matchedEvent]
	now         func() time.Time
}

// creates a matcher with the token, account_number and email_hash strategies registered in that order
func NewMatcher(
	tracker *Tracker,
	completions CompletionRepository,
	emails EmailIndex,
	recorder CompletionRecorder,
	m *metrics.Metrics,
) *Matcher {
	matcher := &Matcher{
		tracker:     tracker,
		handoffs:    tracker.repo,
		completions: completions,
		emails:      emails,
		recorder:    recorder,
		metrics:     m,
		strategies:  strategy.NewRegistry[*matchAttempt]("completion_matcher"),
		listeners:   strategy.NewRegistry[matchedEvent]("match_listener"),
		now:         func() time.Time { return tracker.now() },
	}

	matcher.RegisterStrategy(StrategyToken, matcher.byToken)
	matcher.RegisterStrategy(StrategyAccountNumber, matcher.byAccountNumber)
	matcher.RegisterStrategy(StrategyEmailHash, matcher.byEmailHash)

	return matcher
}

// appends a match strategy; re-registering a name replaces it in place
func (m *Matcher) RegisterStrategy(name string, fn MatchFunc) {
	m.strategies.Register(name, func(a *matchAttempt) (bool, error) {
		h, err := fn(a.ctx, a.completion)
		if errors.Is(err, ErrHandoffNotFound) {
			return false, nil
		}

		if err != nil {
			return false, err
		}

		if h == nil || h.Status != StatusRedirected {
			return false, nil
		}

		a.handoff = h
		return true, nil
	})
}

// registered strategy names in priority order
func (m *Matcher) Strategies() []string {
	return m.strategies.Names()
}

// registers a callback fired after each successful match
func (m *Matcher) OnMatch(name string, fn MatchListener) {
	m.listeners.Register(name, func(e matchedEvent) (bool, error) {
		return true, fn(e.ctx, e.completion, e.handoff)
	})
}

// persists a completion and tries to match it to a handoff.
// unmatched completions are kept for RetryUnmatched.
func (m *Matcher) Receive(ctx context.Context, c *Completion) (*MatchResult, error) {
	c.HandoffToken = strings.ToLower(strings.TrimSpace(c.HandoffToken))
	c.AccountNumber = strings.TrimSpace(c.AccountNumber)

	if c.Email != "" {
		c.EmailHash = visitors.HashEmail(c.Email)
		c.Email = ""
	}

	if c.HandoffToken == "" && c.AccountNumber == "" && c.EmailHash == "" {
		return nil, ErrInvalidCompletion
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = m.now()
	}

	if err := m.completions.Insert(ctx, c); err != nil {
		return nil, err
	}

	result, err := m.match(ctx, c)
	if err != nil {
		return nil, err
	}

	if !result.Matched {
		m.metrics.IncrementCompletions(unmatched)
		logger.Info("completion left unmatched",
			"completion_id", c.ID,
			"context_id", c.ContextID,
		)
	}

	return result, nil
}

// re-runs matching for up to limit stored unmatched completions, oldest first
func (m *Matcher) RetryUnmatched(ctx context.Context, limit int) (*RetryResult, error) {
	pending, err := m.completions.ListUnmatched(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &RetryResult{Attempted: len(pending)}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		c := &pending[i]

		matched, err := m.match(ctx, c)
		if err != nil {
			result.Failed++
			logger.Warn("completion retry failed", "completion_id", c.ID, "error", err)
			continue
		}

		if matched.Matched {
			result.Matched++
			continue
		}

		if err := m.completions.RecordAttempt(ctx, c.ID); err != nil {
			logger.Warn("failed to record completion attempt", "completion_id", c.ID, "error", err)
		}
	}

	return result, nil
}

func (m *Matcher) match(ctx context.Context, c *Completion) (*MatchResult, error) {
	result := &MatchResult{CompletionID: c.ID}

	attempt := &matchAttempt{ctx: ctx, completion: c}
	name, ok := m.strategies.First(attempt)
	if !ok {
		return result, nil
	}

	h := attempt.handoff
	now := m.now()
	data := CompletionData{
		AccountNumber: c.AccountNumber,
		ExternalID:    c.ExternalID,
		Source:        c.Source,
		CompletionID:  c.ID,
		MatchStrategy: name,
	}

	completed, err := m.tracker.MarkCompleted(ctx, h.Token, data)
	if err != nil {
		return nil, err
	}

	// completed or expired between lookup and update
	if !completed {
		return result, nil
	}

	if err := m.completions.Link(ctx, c.ID, h.ID, name, now); err != nil {
		return nil, err
	}

	h.Status = StatusCompleted
	h.CompletionData = &data
	h.CompletedAt = &now

	c.HandoffID = h.ID
	c.MatchStrategy = name
	c.MatchedAt = &now

	_, err = m.recorder.RecordServerSide(ctx, h.VisitorID, touches.TypeFormComplete, h.ContextID, now, map[string]any{
		"completion_id":  c.ID,
		"handoff_token":  h.Token,
		"match_strategy": name,
	})
	if err != nil {
		logger.Warn("failed to record completion touch",
			"completion_id", c.ID,
			"visitor_id", h.VisitorID,
			"error", err,
		)
	}

	m.metrics.IncrementCompletions(name)
	m.listeners.Run(matchedEvent{ctx: ctx, completion: c, handoff: h})

	result.Matched = true
	result.Strategy = name
	result.Handoff = h

	return result, nil
}

func (m *Matcher) byToken(ctx context.Context, c *Completion) (*Handoff, error) {
	if !apierrors.IsValidHexID(c.HandoffToken) {
		return nil, nil
	}

	return m.handoffs.GetByToken(ctx, c.HandoffToken)
}

func (m *Matcher) byAccountNumber(ctx context.Context, c *Completion) (*Handoff, error) {
	if c.AccountNumber == "" {
		return nil, nil
	}

	since := c.ReceivedAt.Add(-AccountMatchWindow)
	return m.handoffs.FindRecentByAccount(ctx, c.ContextID, c.AccountNumber, since)
}

func (m *Matcher) byEmailHash(ctx context.Context, c *Completion) (*Handoff, error) {
	if c.EmailHash == "" || m.emails == nil {
		return nil, nil
	}

	visitorIDs, err := m.emails.FindByEmailHash(ctx, c.EmailHash)
	if err != nil {
		return nil, err
	}

	if len(visitorIDs) == 0 {
		return nil, nil
	}

	return m.handoffs.FindRecentByVisitors(ctx, c.ContextID, visitorIDs)
}
