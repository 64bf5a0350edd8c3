package uc

import (
	"context"
	"fmt"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/pkg/logger"
)

// ListKeys returns every key owned by a user. The stored digests are never
// included in the result and the raw secret is unrecoverable.
type ListKeys struct {
	repo   apikey.Repository
	userID core.ID
}

func NewListKeys(repo apikey.Repository, userID core.ID) *ListKeys {
	return &ListKeys{repo: repo, userID: userID}
}

func (uc *ListKeys) Execute(ctx context.Context) ([]*apikey.APIKey, error) {
	keys, err := uc.repo.ListByUser(ctx, uc.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	for _, k := range keys {
		k.KeyHash = nil
		k.Fingerprint = nil
	}
	return keys, nil
}

// UpdateKeyInput carries optional edits to a key. Nil fields are untouched.
type UpdateKeyInput struct {
	Name        *string
	Scopes      []apikey.Scope
	HourlyLimit *int
	DailyLimit  *int
}

// UpdateKey applies owner-scoped edits to a key's name, scopes and quotas.
type UpdateKey struct {
	repo   apikey.Repository
	userID core.ID
	keyID  core.ID
	input  *UpdateKeyInput
}

func NewUpdateKey(repo apikey.Repository, userID, keyID core.ID, input *UpdateKeyInput) *UpdateKey {
	return &UpdateKey{repo: repo, userID: userID, keyID: keyID, input: input}
}

func (uc *UpdateKey) Execute(ctx context.Context) (*apikey.APIKey, error) {
	key, err := uc.repo.GetByID(ctx, uc.keyID)
	if err != nil {
		return nil, err
	}
	if key.UserID != uc.userID {
		return nil, ErrNotOwner
	}
	if uc.input.Name != nil {
		if err := apikey.ValidateName(*uc.input.Name); err != nil {
			return nil, err
		}
		key.Name = *uc.input.Name
	}
	if uc.input.Scopes != nil {
		if len(uc.input.Scopes) == 0 {
			return nil, fmt.Errorf("at least one scope is required")
		}
		for _, s := range uc.input.Scopes {
			if !s.IsValid() {
				return nil, fmt.Errorf("unknown scope: %s", s)
			}
		}
		key.Scopes = uc.input.Scopes
	}
	if uc.input.HourlyLimit != nil {
		if *uc.input.HourlyLimit <= 0 {
			return nil, fmt.Errorf("hourly limit must be greater than 0")
		}
		key.HourlyLimit = *uc.input.HourlyLimit
	}
	if uc.input.DailyLimit != nil {
		if *uc.input.DailyLimit <= 0 {
			return nil, fmt.Errorf("daily limit must be greater than 0")
		}
		key.DailyLimit = *uc.input.DailyLimit
	}
	if err := uc.repo.Update(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to update API key: %w", err)
	}
	key.KeyHash = nil
	key.Fingerprint = nil
	return key, nil
}

// RevokeKey irreversibly revokes a key. The record is kept for audit; it can
// never become active again.
type RevokeKey struct {
	repo   apikey.Repository
	userID core.ID
	keyID  core.ID
}

func NewRevokeKey(repo apikey.Repository, userID, keyID core.ID) *RevokeKey {
	return &RevokeKey{repo: repo, userID: userID, keyID: keyID}
}

func (uc *RevokeKey) Execute(ctx context.Context) error {
	log := logger.FromContext(ctx)
	key, err := uc.repo.GetByID(ctx, uc.keyID)
	if err != nil {
		return err
	}
	if key.UserID != uc.userID {
		return ErrNotOwner
	}
	if err := uc.repo.UpdateStatus(ctx, uc.keyID, apikey.StatusRevoked); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	log.Info("API key revoked", "key_id", uc.keyID, "user_id", uc.userID)
	return nil
}
