package visitors

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

// creates a postgres-backed visitor repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, v *Visitor) error {
	firstTouch, err := json.Marshal(v.FirstTouch)
	if err != nil {
		return fmt.Errorf("failed to encode first touch: %w", err)
	}

	deviceInfo, err := json.Marshal(v.Device)
	if err != nil {
		return fmt.Errorf("failed to encode device info: %w", err)
	}

	_, err = r.db.Exec(ctx, queryCreate,
		v.ID,
		v.FingerprintHash,
		v.FirstSeenAt,
		v.LastSeenAt,
		v.VisitCount,
		string(firstTouch),
		string(deviceInfo),
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateID
	}

	if err != nil {
		return fmt.Errorf("failed to insert visitor: %w", err)
	}

	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*Visitor, error) {
	var (
		v          Visitor
		firstTouch []byte
		deviceInfo []byte
	)

	err := r.db.QueryRow(ctx, queryGet, id).Scan(
		&v.ID,
		&v.FingerprintHash,
		&v.FirstSeenAt,
		&v.LastSeenAt,
		&v.VisitCount,
		&firstTouch,
		&deviceInfo,
		&v.EmailHash,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVisitorNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}

	if v.FirstTouch, err = campaign.DecodeSnapshot(firstTouch); err != nil {
		return nil, err
	}

	if len(deviceInfo) > 0 {
		if err := json.Unmarshal(deviceInfo, &v.Device); err != nil {
			return nil, fmt.Errorf("failed to decode device info: %w", err)
		}
	}

	return &v, nil
}

func (r *repository) RecordVisit(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, queryRecordVisit, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to record visit: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *repository) SetEmailHash(ctx context.Context, id, emailHash string) (bool, error) {
	tag, err := r.db.Exec(ctx, querySetEmailHash, id, emailHash)
	if err != nil {
		return false, fmt.Errorf("failed to link email: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *repository) FindByEmailHash(ctx context.Context, emailHash string) ([]string, error) {
	rows, err := r.db.Query(ctx, queryFindByEmailHash, emailHash)
	if err != nil {
		return nil, fmt.Errorf("failed to find visitors by email: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan visitor ids: %w", err)
	}

	return ids, nil
}
