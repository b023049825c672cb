package handoffs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/touchpath/visitors"
)

// handoff lifecycle; completed and expired are terminal
type Status string

const (
	StatusRedirected Status = "redirected"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

const (
	// default age after which redirected handoffs expire
	DefaultExpiryHours = 168

	// how far back account-number matching looks
	AccountMatchWindow = 30 * 24 * time.Hour

	// extra param that also tags the handoff for account-number matching
	ParamAccountNumber = "account_number"

	// match strategy names, in priority order
	StrategyToken         = "token"
	StrategyAccountNumber = "account_number"
	StrategyEmailHash     = "email_hash"

	completionDataVersion = 1
)

var (
	ErrHandoffNotFound    = errors.New("handoff not found")
	ErrInvalidDestination = errors.New("destination must be an absolute http(s) URL")
	ErrUnsupportedVersion = errors.New("unsupported completion data version")
	ErrCompletionNotFound = errors.New("completion not found")
	ErrInvalidCompletion  = errors.New("completion carries no token, account number or email")
	ErrInvalidRedirectJWT = errors.New("invalid completion redirect token")
	ErrMissingSigningKey  = errors.New("completion redirect signing secret not configured")
	ErrDuplicateToken     = errors.New("handoff token already exists")
)

// repository interface for handoff storage
type Repository interface {
	Create(ctx context.Context, h *Handoff) error
	GetByToken(ctx context.Context, token string) (*Handoff, error)

	// redirected -> completed; false when the handoff is unknown or not redirected
	Complete(ctx context.Context, token string, data CompletionData, at time.Time) (bool, error)

	// redirected handoffs created before cutoff -> expired
	ExpireBefore(ctx context.Context, cutoff, at time.Time) (int64, error)

	// most recent redirected handoff for the account created at or after since
	FindRecentByAccount(ctx context.Context, contextID, accountNumber string, since time.Time) (*Handoff, error)

	// most recent redirected handoff belonging to any of the visitors
	FindRecentByVisitors(ctx context.Context, contextID string, visitorIDs []string) (*Handoff, error)

	Stats(ctx context.Context, contextID string, from, to time.Time) (*Stats, error)
}

// repository interface for externally reported completions
type CompletionRepository interface {
	Insert(ctx context.Context, c *Completion) error
	Link(ctx context.Context, id, handoffID, strategy string, at time.Time) error
	RecordAttempt(ctx context.Context, id string) error

	// unlinked completions, oldest first
	ListUnmatched(ctx context.Context, limit int) ([]Completion, error)
}

// looks up visitors linked to an email hash
type EmailIndex interface {
	FindByEmailHash(ctx context.Context, emailHash string) ([]string, error)
}

var _ EmailIndex = visitors.Repository(nil)

// a tracked redirect of a visitor to an external system
type Handoff struct {
	ID             string            `json:"id"`
	Token          string            `json:"token"`
	VisitorID      string            `json:"visitor_id"`
	ContextID      string            `json:"context_id,omitempty"`
	DestinationURL string            `json:"destination_url"`
	RedirectURL    string            `json:"redirect_url"`
	AccountNumber  string            `json:"account_number,omitempty"`
	Snapshot       campaign.Snapshot `json:"attribution_snapshot"`
	Status         Status            `json:"status"`
	CompletionData *CompletionData   `json:"completion_data,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	ExpiredAt      *time.Time        `json:"expired_at,omitempty"`
}

// payload stamped on a handoff when it completes
type CompletionData struct {
	AccountNumber string `json:"account_number,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
	Source        string `json:"source,omitempty"`
	CompletionID  string `json:"completion_id,omitempty"`
	MatchStrategy string `json:"match_strategy,omitempty"`
}

func (d CompletionData) MarshalJSON() ([]byte, error) {
	type plain CompletionData
	return json.Marshal(struct {
		Version int `json:"v"`
		plain
	}{completionDataVersion, plain(d)})
}

// accepts v1 and the unversioned layout it extends
func (d *CompletionData) UnmarshalJSON(data []byte) error {
	type plain CompletionData
	var decoded struct {
		Version *int `json:"v"`
		plain
	}

	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode completion data: %w", err)
	}

	if decoded.Version != nil && *decoded.Version != completionDataVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, *decoded.Version)
	}

	*d = CompletionData(decoded.plain)
	return nil
}

// an externally reported conversion, matched (or not) to a handoff
type Completion struct {
	ID            string     `json:"id"`
	ContextID     string     `json:"context_id,omitempty"`
	AccountNumber string     `json:"account_number,omitempty"`
	Email         string     `json:"-"`
	EmailHash     string     `json:"-"`
	HandoffToken  string     `json:"handoff_token,omitempty"`
	ExternalID    string     `json:"external_id,omitempty"`
	Source        string     `json:"source,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	HandoffID     string     `json:"handoff_id,omitempty"`
	MatchStrategy string     `json:"match_strategy,omitempty"`
	MatchedAt     *time.Time `json:"matched_at,omitempty"`
	Attempts      int        `json:"attempts"`
}

// returned by CreateHandoff
type Created struct {
	HandoffID      string `json:"handoff_id"`
	Token          string `json:"token"`
	VisitorID      string `json:"visitor_id"`
	RedirectURL    string `json:"redirect_url"`
	TrackingURL    string `json:"tracking_url"`
	DestinationURL string `json:"destination_url"`

	// identity resolution performed while creating the handoff
	Visitor *visitors.Resolution `json:"-"`
}

// handoff counts for a context and window
type Stats struct {
	Total          int     `json:"total"`
	Redirected     int     `json:"redirected"`
	Completed      int     `json:"completed"`
	Expired        int     `json:"expired"`
	CompletionRate float64 `json:"completion_rate"`
}

// outcome of matching one completion
type MatchResult struct {
	CompletionID string   `json:"completion_id"`
	Matched      bool     `json:"matched"`
	Strategy     string   `json:"strategy,omitempty"`
	Handoff      *Handoff `json:"handoff,omitempty"`
}

// outcome of a retry sweep
type RetryResult struct {
	Attempted int `json:"attempted"`
	Matched   int `json:"matched"`
	Failed    int `json:"failed"`
}
