package touches

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

// creates a postgres-backed touch repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, t *Touch) error {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return fmt.Errorf("failed to encode touch data: %w", err)
	}

	_, err = r.db.Exec(ctx, queryInsert,
		t.ID,
		t.VisitorID,
		t.ContextID,
		string(t.Type),
		t.UTM.Source,
		t.UTM.Medium,
		t.UTM.Campaign,
		t.UTM.Term,
		t.UTM.Content,
		t.ClickIDs.GCLID,
		t.ClickIDs.FBCLID,
		t.ClickIDs.MSCLKID,
		t.ClickIDs.DCLID,
		t.PromoCode,
		t.Referrer,
		t.ReferrerDomain,
		t.LandingPage,
		t.PageURL,
		string(data),
		t.CreatedAt,
	)

	return err
}

func (r *repository) ListForVisitor(ctx context.Context, visitorID string, until time.Time) ([]Touch, error) {
	return r.list(ctx, queryListForVisitor, visitorID, until)
}

func (r *repository) ListConversions(ctx context.Context, f Filter) ([]Touch, error) {
	return r.list(ctx, queryListConversions, f.ContextID, nullableTime(f.From), nullableTime(f.To))
}

func (r *repository) ListInRange(ctx context.Context, f Filter) ([]Touch, error) {
	return r.list(ctx, queryListInRange, f.ContextID, nullableTime(f.From), nullableTime(f.To))
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, queryDeleteOlderThan, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete touches: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *repository) list(ctx context.Context, query string, args ...any) ([]Touch, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query touches: %w", err)
	}

	defer rows.Close()
	var touches []Touch

	for rows.Next() {
		var (
			t        Touch
			touchTyp string
			data     []byte
		)

		err := rows.Scan(
			&t.ID,
			&t.VisitorID,
			&t.ContextID,
			&touchTyp,
			&t.UTM.Source,
			&t.UTM.Medium,
			&t.UTM.Campaign,
			&t.UTM.Term,
			&t.UTM.Content,
			&t.ClickIDs.GCLID,
			&t.ClickIDs.FBCLID,
			&t.ClickIDs.MSCLKID,
			&t.ClickIDs.DCLID,
			&t.PromoCode,
			&t.Referrer,
			&t.ReferrerDomain,
			&t.LandingPage,
			&t.PageURL,
			&data,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan touch: %w", err)
		}

		t.Type = Type(touchTyp)

		if t.Data, err = DecodeData(data); err != nil {
			return nil, err
		}

		touches = append(touches, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return touches, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

