package visitors

import (
	"context"
	"errors"
	"net/http"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/internal/device"
)

var (
	ErrVisitorNotFound = errors.New("visitor not found")
	ErrDuplicateID     = errors.New("visitor id already exists")
)

// repository interface for visitor storage
type Repository interface {
	Create(ctx context.Context, v *Visitor) error
	Get(ctx context.Context, id string) (*Visitor, error)

	// bumps last_seen_at and visit_count; false when the visitor does not exist
	RecordVisit(ctx context.Context, id string, at time.Time) (bool, error)

	SetEmailHash(ctx context.Context, id, emailHash string) (bool, error)

	// visitor ids linked to an email hash, most recently seen first
	FindByEmailHash(ctx context.Context, emailHash string) ([]string, error)
}

// an anonymous browser identity
type Visitor struct {
	ID              string            `json:"id"`
	FingerprintHash string            `json:"fingerprint_hash,omitempty"`
	FirstSeenAt     time.Time         `json:"first_seen_at"`
	LastSeenAt      time.Time         `json:"last_seen_at"`
	VisitCount      int               `json:"visit_count"`
	FirstTouch      campaign.Snapshot `json:"first_touch"`
	Device          device.Info       `json:"device"`
	EmailHash       string            `json:"-"`
}

// outcome of resolving the visitor behind a request
type Resolution struct {
	VisitorID string
	IsNew     bool

	// identity cookie to set on the response
	Cookie *http.Cookie
}

// called once per newly created visitor
type Listener func(ctx context.Context, v *Visitor) error

type newVisitorEvent struct {
	ctx     context.Context
	visitor *Visitor
}
