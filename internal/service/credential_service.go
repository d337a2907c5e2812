package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/finguru/backend-api/pkg/errors"
)

// MaxSecretBytes is the longest secret bcrypt accepts.
const MaxSecretBytes = 72

// PasswordHasher hashes and verifies credentials with bcrypt. Hashing is
// CPU-bound, so each call runs on its own goroutine and the caller stops
// waiting as soon as its context is done.
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher returns a hasher with the given bcrypt cost, clamped to
// the range bcrypt accepts. Zero selects bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	h := &PasswordHasher{cost: cost}
	// Used by VerifyUnknown so a missing account costs one full compare.
	h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("finguru-timing-equaliser"), cost)
	return h
}

// Cost returns the configured work factor.
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt digest of secret.
func (h *PasswordHasher) Hash(ctx context.Context, secret string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", appErrors.Internal(err, "credential hashing interrupted")
	}
	type result struct {
		digest []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
		done <- result{digest: digest, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", appErrors.Internal(ctx.Err(), "credential hashing interrupted")
	case res := <-done:
		if res.err != nil {
			return "", appErrors.WrapAs(res.err, appErrors.ErrHashing)
		}
		return string(res.digest), nil
	}
}

// Verify reports whether secret matches digest. Mismatches, malformed digests,
// over-long secrets and cancellation all yield false.
func (h *PasswordHasher) Verify(ctx context.Context, secret, digest string) bool {
	if len(secret) > MaxSecretBytes {
		// Only a prefix would be compared; no stored digest can match.
		h.VerifyUnknown(ctx, secret[:MaxSecretBytes])
		return false
	}
	done := make(chan bool, 1)
	go func() {
		done <- bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
	}()

	select {
	case <-ctx.Done():
		return false
	case ok := <-done:
		return ok
	}
}

// VerifyUnknown spends the same work as Verify against a throwaway digest and
// always returns false.
func (h *PasswordHasher) VerifyUnknown(ctx context.Context, secret string) bool {
	if len(h.dummyHash) > 0 {
		h.Verify(ctx, secret, string(h.dummyHash))
	}
	return false
}
