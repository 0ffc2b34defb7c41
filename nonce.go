package ethauth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultNonceUpperBound keeps nonces exact for JavaScript clients
const DefaultNonceUpperBound int64 = 1 << 53

// MinNonceUpperBound is the smallest range accepted for nonces
const MinNonceUpperBound int64 = 1_000_000

// ErrNonceRangeTooSmall is returned when the configured range is too narrow
var ErrNonceRangeTooSmall = goerrors.New(
	fmt.Sprintf("nonce upper bound must be at least %d", MinNonceUpperBound),
	goerrors.CategoryValidation,
).WithTextCode(string(KindPolicyMisconfigured))

// NonceStore is the slice of the user store the nonce manager needs
type NonceStore interface {
	RotateNonceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, prev, next int64) (bool, error)
}

// NonceManager issues and rotates the per-user one-time challenge value.
type NonceManager struct {
	store      NonceStore
	upperBound *big.Int
	random     io.Reader
	metrics    *Metrics
}

// NonceOption configures a NonceManager
type NonceOption func(*NonceManager)

// WithNonceRandom overrides the entropy source
func WithNonceRandom(r io.Reader) NonceOption {
	return func(m *NonceManager) {
		if r != nil {
			m.random = r
		}
	}
}

// WithNonceMetrics records rotation outcomes
func WithNonceMetrics(metrics *Metrics) NonceOption {
	return func(m *NonceManager) {
		m.metrics = metrics
	}
}

// NewNonceManager returns a manager drawing nonces from [0, upperBound).
// A zero upperBound selects DefaultNonceUpperBound.
func NewNonceManager(store NonceStore, upperBound int64, opts ...NonceOption) (*NonceManager, error) {
	if upperBound == 0 {
		upperBound = DefaultNonceUpperBound
	}

	if upperBound < MinNonceUpperBound {
		return nil, ErrNonceRangeTooSmall
	}

	m := &NonceManager{
		store:      store,
		upperBound: big.NewInt(upperBound),
		random:     rand.Reader,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

// Issue returns a fresh uniformly random nonce
func (m *NonceManager) Issue() (int64, error) {
	n, err := rand.Int(m.random, m.upperBound)
	if err != nil {
		return 0, WrapDownstream(err, IDNonceUnavailable, "failed to generate nonce")
	}
	return n.Int64(), nil
}

// Rotate replaces the nonce of user, provided it still holds the value that
// was read before verification. A concurrent request that consumed the same
// nonce first makes this call fail with an invalid signature error, so a
// captured signature can never be used twice.
func (m *NonceManager) Rotate(ctx context.Context, tx bun.IDB, user *User) (int64, error) {
	if user == nil {
		return 0, errAccountNotFound()
	}

	next, err := m.Issue()
	if err != nil {
		m.metrics.nonceRotation("error")
		return 0, err
	}

	for next == user.Nonce {
		if next, err = m.Issue(); err != nil {
			m.metrics.nonceRotation("error")
			return 0, err
		}
	}

	ok, err := m.store.RotateNonceTx(ctx, tx, user.ID, user.Nonce, next)
	if err != nil {
		m.metrics.nonceRotation("error")
		return 0, WrapDownstream(err, IDInternal, "failed to persist nonce")
	}

	if !ok {
		m.metrics.nonceRotation("stale")
		return 0, errInvalidSignature()
	}

	m.metrics.nonceRotation("rotated")
	user.Nonce = next

	return next, nil
}
