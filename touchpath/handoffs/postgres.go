package handoffs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type repository struct {
	db *pgxpool.Pool
}

// creates a postgres-backed handoff repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, h *Handoff) error {
	snapshot, err := json.Marshal(h.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode attribution snapshot: %w", err)
	}

	_, err = r.db.Exec(ctx, queryCreate,
		h.ID,
		h.Token,
		h.VisitorID,
		h.ContextID,
		h.DestinationURL,
		h.RedirectURL,
		h.AccountNumber,
		string(snapshot),
		string(h.Status),
		h.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateToken
	}

	if err != nil {
		return fmt.Errorf("failed to insert handoff: %w", err)
	}

	return nil
}

func (r *repository) GetByToken(ctx context.Context, token string) (*Handoff, error) {
	return r.queryOne(ctx, queryGetByToken, token)
}

func (r *repository) Complete(ctx context.Context, token string, data CompletionData, at time.Time) (bool, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("failed to encode completion data: %w", err)
	}

	tag, err := r.db.Exec(ctx, queryComplete, token, string(encoded), at)
	if err != nil {
		return false, fmt.Errorf("failed to complete handoff: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *repository) ExpireBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, queryExpireBefore, cutoff, at)
	if err != nil {
		return 0, fmt.Errorf("failed to expire handoffs: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *repository) FindRecentByAccount(
	ctx context.Context,
	contextID, accountNumber string,
	since time.Time,
) (*Handoff, error) {
	return r.queryOne(ctx, queryFindRecentByAccount, contextID, accountNumber, since)
}

func (r *repository) FindRecentByVisitors(ctx context.Context, contextID string, visitorIDs []string) (*Handoff, error) {
	if len(visitorIDs) == 0 {
		return nil, ErrHandoffNotFound
	}

	return r.queryOne(ctx, queryFindRecentByVisitors, contextID, visitorIDs)
}

func (r *repository) Stats(ctx context.Context, contextID string, from, to time.Time) (*Stats, error) {
	var s Stats

	err := r.db.QueryRow(ctx, queryStats, contextID, nullableTime(from), nullableTime(to)).Scan(
		&s.Total,
		&s.Redirected,
		&s.Completed,
		&s.Expired,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count handoffs: %w", err)
	}

	return &s, nil
}

func (r *repository) queryOne(ctx context.Context, query string, args ...any) (*Handoff, error) {
	var (
		h              Handoff
		status         string
		snapshot       []byte
		completionData []byte
	)

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&h.ID,
		&h.Token,
		&h.VisitorID,
		&h.ContextID,
		&h.DestinationURL,
		&h.RedirectURL,
		&h.AccountNumber,
		&snapshot,
		&status,
		&completionData,
		&h.CreatedAt,
		&h.CompletedAt,
		&h.ExpiredAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHandoffNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get handoff: %w", err)
	}

	h.Status = Status(status)

	if h.Snapshot, err = campaign.DecodeSnapshot(snapshot); err != nil {
		return nil, err
	}

	if len(completionData) > 0 {
		var data CompletionData
		if err := json.Unmarshal(completionData, &data); err != nil {
			return nil, err
		}

		h.CompletionData = &data
	}

	return &h, nil
}

type completionRepository struct {
	db *pgxpool.Pool
}

// creates a postgres-backed completion repository
func NewCompletionRepository(db *pgxpool.Pool) CompletionRepository {
	return &completionRepository{db: db}
}

func (r *completionRepository) Insert(ctx context.Context, c *Completion) error {
	_, err := r.db.Exec(ctx, queryInsertCompletion,
		c.ID,
		c.ContextID,
		c.AccountNumber,
		c.EmailHash,
		c.HandoffToken,
		c.ExternalID,
		c.Source,
		c.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert completion: %w", err)
	}

	return nil
}

func (r *completionRepository) Link(ctx context.Context, id, handoffID, strategy string, at time.Time) error {
	tag, err := r.db.Exec(ctx, queryLinkCompletion, id, handoffID, strategy, at)
	if err != nil {
		return fmt.Errorf("failed to link completion: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrCompletionNotFound
	}

	return nil
}

func (r *completionRepository) RecordAttempt(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, queryRecordAttempt, id); err != nil {
		return fmt.Errorf("failed to record completion attempt: %w", err)
	}

	return nil
}

func (r *completionRepository) ListUnmatched(ctx context.Context, limit int) ([]Completion, error) {
	rows, err := r.db.Query(ctx, queryListUnmatched, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched completions: %w", err)
	}
	defer rows.Close()

	var completions []Completion
	for rows.Next() {
		var c Completion

		err := rows.Scan(
			&c.ID,
			&c.ContextID,
			&c.AccountNumber,
			&c.EmailHash,
			&c.HandoffToken,
			&c.ExternalID,
			&c.Source,
			&c.ReceivedAt,
			&c.Attempts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}

		completions = append(completions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completions: %w", err)
	}

	return completions, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
