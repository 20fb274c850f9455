package appErrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies a dispatch failure and drives its disposition: retry with
// backoff, requeue at the next window, or terminal failure.
type Kind int

const (
	// KindTransient covers timeouts, 5xx responses and connection resets;
	// retried with exponential backoff up to max_retries.
	KindTransient Kind = iota
	// KindRateLimit covers 429s and provider daily caps; requeued at the next
	// window start without consuming a retry.
	KindRateLimit
	// KindAuth covers bad credentials and disconnected accounts; terminal,
	// and the tenant's channel is paused.
	KindAuth
	// KindPermanent covers hard bounces, invalid numbers and missing
	// profiles; terminal, and the lead's contact key is marked bad.
	KindPermanent
	// KindData covers missing campaign/lead/product rows; terminal.
	KindData
	// KindContent covers AI refusals and malformed generations; retried
	// inline up to twice, then treated as transient.
	KindContent
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindPermanent:
		return "permanent"
	case KindData:
		return "data"
	case KindContent:
		return "content"
	default:
		return "transient"
	}
}

// DispatchError wraps a failure with its classification.
type DispatchError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// E builds a classified dispatch error.
func E(kind Kind, op string, err error) error {
	return &DispatchError{Kind: kind, Op: op, Err: err}
}

// Ef builds a classified dispatch error from a format string.
func Ef(kind Kind, op, format string, args ...any) error {
	return &DispatchError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// ClassifyKind extracts the Kind from an error chain; unclassified errors are
// treated as transient so they stay on the retry path.
func ClassifyKind(err error) Kind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

// Retryable reports whether the error should go back on the queue at all.
func Retryable(err error) bool {
	switch ClassifyKind(err) {
	case KindAuth, KindPermanent, KindData:
		return false
	default:
		return true
	}
}

// ErrCampaignNotFound is a sentinel error for a missing campaign row.
type ErrCampaignNotFound struct {
	CampaignID uuid.UUID
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id uuid.UUID) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrRunNotFound is a sentinel error for a missing campaign run row.
type ErrRunNotFound struct {
	RunID uuid.UUID
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("campaign run %s not found", e.RunID)
}

func NewRunNotFound(id uuid.UUID) error {
	return &ErrRunNotFound{RunID: id}
}

// ErrNotLeased is returned when a terminal transition is attempted on a queue
// item that is not in processing state.
var ErrNotLeased = errors.New("queue item is not leased")
