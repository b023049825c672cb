package handoffs

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/touchpath/server/touchpath/touches"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceive_MatchesByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, "form-1", f.now.Add(-time.Hour), map[string]string{ParamAccountNumber: "ACC-1"})

	result, err := f.matcher.Receive(ctx, &Completion{
		HandoffToken:  created.Token,
		AccountNumber: "ACC-1",
		ExternalID:    "loan-42",
		Source:        "webhook",
	})
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, StrategyToken, result.Strategy, "token wins over account number")
	require.NotNil(t, result.Handoff)
	assert.Equal(t, StatusCompleted, result.Handoff.Status)

	stored, err := f.repo.GetByToken(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletionData)
	assert.Equal(t, "loan-42", stored.CompletionData.ExternalID)
	assert.Equal(t, result.CompletionID, stored.CompletionData.CompletionID)

	c, ok := f.completions.Get(result.CompletionID)
	require.True(t, ok)
	assert.Equal(t, stored.ID, c.HandoffID)
	assert.Equal(t, StrategyToken, c.MatchStrategy)

	journey, err := f.touchRepo.ListForVisitor(ctx, created.VisitorID, farFuture)
	require.NoError(t, err)
	require.Len(t, journey, 2)

	conversion := journey[1]
	assert.Equal(t, touches.TypeFormComplete, conversion.Type)
	assert.Equal(t, touches.SourceServer, conversion.Data.Source)
	assert.Equal(t, "form-1", conversion.ContextID)
	assert.Equal(t, created.Token, conversion.Data.Extra["handoff_token"])
}

func TestReceive_MatchesByAccountNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := f.create(t, "form-1", f.now.Add(-48*time.Hour), map[string]string{ParamAccountNumber: "ACC-9"})
	newer := f.create(t, "form-1", f.now.Add(-2*time.Hour), map[string]string{ParamAccountNumber: "ACC-9"})
	f.create(t, "form-2", f.now.Add(-time.Hour), map[string]string{ParamAccountNumber: "ACC-9"})

	result, err := f.matcher.Receive(ctx, &Completion{ContextID: "form-1", AccountNumber: " ACC-9 "})
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, StrategyAccountNumber, result.Strategy)
	assert.Equal(t, newer.Token, result.Handoff.Token, "most recent handoff in the same context")

	h, err := f.repo.GetByToken(ctx, older.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusRedirected, h.Status)
}

func TestReceive_AccountNumberWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "form-1", f.now, map[string]string{ParamAccountNumber: "ACC-OLD"})

	result, err := f.matcher.Receive(ctx, &Completion{
		ContextID:     "form-1",
		AccountNumber: "ACC-OLD",
		ReceivedAt:    f.now.Add(31 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestReceive_MatchesByEmailHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, "form-1", f.now, nil)

	linked, err := f.visitors.LinkEmail(ctx, created.VisitorID, "Jane@Example.com")
	require.NoError(t, err)
	require.True(t, linked)

	result, err := f.matcher.Receive(ctx, &Completion{ContextID: "form-1", Email: "  jane@example.com"})
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, StrategyEmailHash, result.Strategy)
	assert.Equal(t, created.Token, result.Handoff.Token)

	c, ok := f.completions.Get(result.CompletionID)
	require.True(t, ok)
	assert.Empty(t, c.Email, "raw email is never stored")
	assert.Len(t, c.EmailHash, 64)
}

func TestReceive_Invalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.matcher.Receive(context.Background(), &Completion{ExternalID: "only-this"})
	assert.ErrorIs(t, err, ErrInvalidCompletion)
}

func TestReceive_CompletedHandoffIsNotReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, "form-1", f.now, nil)

	first, err := f.matcher.Receive(ctx, &Completion{HandoffToken: created.Token})
	require.NoError(t, err)
	assert.True(t, first.Matched)

	second, err := f.matcher.Receive(ctx, &Completion{HandoffToken: created.Token})
	require.NoError(t, err)
	assert.False(t, second.Matched)
}

func TestRetryUnmatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, err := f.matcher.Receive(ctx, &Completion{ContextID: "form-1", AccountNumber: "LATE-1"})
	require.NoError(t, err)
	require.False(t, early.Matched)

	_, err = f.matcher.Receive(ctx, &Completion{ContextID: "form-1", AccountNumber: "NEVER"})
	require.NoError(t, err)

	f.create(t, "form-1", f.now, map[string]string{ParamAccountNumber: "LATE-1"})

	result, err := f.matcher.RetryUnmatched(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &RetryResult{Attempted: 2, Matched: 1}, result)

	c, ok := f.completions.Get(early.CompletionID)
	require.True(t, ok)
	assert.Equal(t, StrategyAccountNumber, c.MatchStrategy)

	result, err = f.matcher.RetryUnmatched(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &RetryResult{Attempted: 1}, result)
}

func TestMatcher_StrategyFailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, "form-1", f.now, map[string]string{ParamAccountNumber: "ACC-7"})

	f.matcher.RegisterStrategy(StrategyToken, func(context.Context, *Completion) (*Handoff, error) {
		panic("boom")
	})
	f.matcher.RegisterStrategy("always_errors", func(context.Context, *Completion) (*Handoff, error) {
		return nil, errors.New("store down")
	})

	assert.Equal(t, []string{StrategyToken, StrategyAccountNumber, StrategyEmailHash, "always_errors"}, f.matcher.Strategies())

	result, err := f.matcher.Receive(ctx, &Completion{HandoffToken: created.Token, AccountNumber: "ACC-7"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, StrategyAccountNumber, result.Strategy)
}

func TestMatcher_OnMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, "form-1", f.now, nil)

	var seen []string
	f.matcher.OnMatch("collect", func(_ context.Context, c *Completion, h *Handoff) error {
		seen = append(seen, h.Token)
		return nil
	})
	f.matcher.OnMatch("broken", func(context.Context, *Completion, *Handoff) error {
		panic("listener panic")
	})

	result, err := f.matcher.Receive(ctx, &Completion{HandoffToken: created.Token})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, []string{created.Token}, seen)
}
