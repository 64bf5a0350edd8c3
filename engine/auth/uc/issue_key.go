package uc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// IssueKeyInput describes a key issuance request.
type IssueKeyInput struct {
	Name        string
	Scopes      []apikey.Scope
	HourlyLimit int
	DailyLimit  int
	ExpiresAt   *time.Time
}

// IssueKey mints a new API key for a user. The raw secret appears in the
// returned record exactly once; only its digests are stored.
type IssueKey struct {
	repo   apikey.Repository
	userID core.ID
	input  *IssueKeyInput
}

func NewIssueKey(repo apikey.Repository, userID core.ID, input *IssueKeyInput) *IssueKey {
	return &IssueKey{repo: repo, userID: userID, input: input}
}

func (uc *IssueKey) Execute(ctx context.Context) (*apikey.APIKey, error) {
	log := logger.FromContext(ctx)
	key, err := apikey.New(uc.userID, uc.input.Name, uc.input.Scopes, uc.input.HourlyLimit, uc.input.DailyLimit)
	if err != nil {
		return nil, err
	}
	if uc.input.ExpiresAt != nil {
		if uc.input.ExpiresAt.Before(time.Now().UTC()) {
			return nil, fmt.Errorf("expiration time must be in the future")
		}
		key.ExpiresAt = uc.input.ExpiresAt
	}
	plaintext, err := generateSecret()
	if err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash API key: %w", err)
	}
	fingerprint := sha256.Sum256([]byte(plaintext))
	key.KeyHash = hashed
	key.Fingerprint = fingerprint[:]
	if err := uc.repo.Create(ctx, key); err != nil {
		log.Error("Failed to create API key", "error", err, "user_id", uc.userID)
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}
	log.Info("API key issued", "user_id", uc.userID, "key_id", key.ID)
	key.Key = plaintext
	return key, nil
}

func generateSecret() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	part := make([]byte, apikey.KeyRandomLength)
	for i := range part {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random key part: %w", err)
		}
		part[i] = charset[num.Int64()]
	}
	return apikey.KeyPrefix + string(part), nil
}
