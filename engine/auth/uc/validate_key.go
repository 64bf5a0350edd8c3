package uc

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// Pre-computed bcrypt hash (cost=10) used to equalize timing when the
// fingerprint lookup misses. Any valid bcrypt hash works.
var dummyBcryptHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOa5hnhtNGRjukDWO2xzg3sjQTL1dDQ2u")

// Bounded semaphore for the best-effort last-used update so a burst of
// validations cannot spawn unbounded goroutines.
var lastUsedSem = make(chan struct{}, 10)

// ValidateKey resolves a presented bearer secret to an API key and checks
// the required scopes. Validation never succeeds against a raw-value lookup:
// the secret is digested and matched against stored digests only.
type ValidateKey struct {
	repo      apikey.Repository
	plaintext string
	required  []apikey.Scope
}

func NewValidateKey(repo apikey.Repository, plaintext string, required ...apikey.Scope) *ValidateKey {
	return &ValidateKey{repo: repo, plaintext: plaintext, required: required}
}

func (uc *ValidateKey) Execute(ctx context.Context) (*apikey.APIKey, error) {
	log := logger.FromContext(ctx)
	fingerprint := sha256.Sum256([]byte(uc.plaintext))
	key, err := uc.repo.GetByFingerprint(ctx, fingerprint[:])
	if err != nil {
		// Equalize timing against the found path to avoid leaking whether
		// the fingerprint exists.
		_ = bcrypt.CompareHashAndPassword(dummyBcryptHash, []byte(uc.plaintext)) //nolint:errcheck
		if errors.Is(err, ErrKeyNotFound) {
			log.Debug("API key not found", "error", err)
			return nil, ErrInvalidKey
		}
		log.Error("Failed to look up API key", "error", err)
		return nil, fmt.Errorf("internal error validating API key: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(key.KeyHash, []byte(uc.plaintext)); err != nil {
		log.Debug("API key digest verification failed")
		return nil, ErrInvalidKey
	}
	if key.Status != apikey.StatusActive {
		return nil, ErrInvalidKey
	}
	if key.IsExpired() {
		return nil, ErrExpiredKey
	}
	if !key.HasScopes(uc.required...) {
		return nil, ErrInsufficientScope
	}
	uc.touchLastUsed(ctx, key)
	return key, nil
}

// touchLastUsed updates the last-used timestamp as a fire-and-forget write;
// failure to update must not fail the request.
func (uc *ValidateKey) touchLastUsed(ctx context.Context, key *apikey.APIKey) {
	log := logger.FromContext(ctx)
	select {
	case lastUsedSem <- struct{}{}:
		go func() {
			defer func() { <-lastUsedSem }()
			bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := uc.repo.UpdateLastUsed(bgCtx, key.ID); err != nil {
				log.Warn("Failed to update API key last used", "error", err, "key_id", key.ID)
			}
		}()
	default:
		log.Debug("Skipping API key last used update due to high load", "key_id", key.ID)
	}
}
