package apikey

import (
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/core"
)

// Scope is a named permission grant held by an API key.
type Scope string

const (
	// ScopeRead allows catalog reads through agent endpoints
	ScopeRead Scope = "read"
	// ScopePurchase allows the checkout/payment/confirm lifecycle
	ScopePurchase Scope = "purchase"
	// ScopeListingWrite allows listing mutations on behalf of the owner
	ScopeListingWrite Scope = "listing-write"
)

// IsValid checks whether the scope is one of the known grants.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeRead, ScopePurchase, ScopeListingWrite:
		return true
	default:
		return false
	}
}

// Status represents the status of an API key
type Status string

const (
	// StatusActive indicates the API key is active
	StatusActive Status = "active"
	// StatusRevoked indicates the API key has been revoked. Revocation is
	// irreversible; there is no transition back to active.
	StatusRevoked Status = "revoked"
)

const (
	// KeyPrefix is the prefix for all issued keys
	KeyPrefix = "cmk_"
	// KeyRandomLength is the number of random characters after the prefix
	KeyRandomLength = 32
)

// APIKey identifies an agent principal. The raw secret exists only in the
// issuance response; KeyHash is a bcrypt digest and Fingerprint a sha256
// digest used for constant-time lookup.
type APIKey struct {
	ID          core.ID    `json:"id"                     db:"id"`
	UserID      core.ID    `json:"user_id"                db:"user_id"`
	Name        string     `json:"name"                   db:"name"`
	KeyHash     []byte     `json:"-"                      db:"key_hash"`
	Fingerprint []byte     `json:"-"                      db:"fingerprint"`
	Scopes      []Scope    `json:"scopes"                 db:"scopes"`
	HourlyLimit int        `json:"hourly_limit"           db:"hourly_limit"`
	DailyLimit  int        `json:"daily_limit"            db:"daily_limit"`
	Status      Status     `json:"status"                 db:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"   db:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"             db:"updated_at"`
	// Key is the raw secret, populated only on issuance
	Key string `json:"key,omitempty" db:"-"`
}

// New creates an API key record pending digest assignment.
func New(userID core.ID, name string, scopes []Scope, hourlyLimit, dailyLimit int) (*APIKey, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	for _, s := range scopes {
		if !s.IsValid() {
			return nil, fmt.Errorf("unknown scope: %s", s)
		}
	}
	if hourlyLimit <= 0 || dailyLimit <= 0 {
		return nil, fmt.Errorf("rate limits must be greater than 0")
	}
	id, err := core.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key ID: %w", err)
	}
	now := time.Now().UTC()
	return &APIKey{
		ID:          id,
		UserID:      userID,
		Name:        name,
		Scopes:      scopes,
		HourlyLimit: hourlyLimit,
		DailyLimit:  dailyLimit,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ValidateName validates an API key display name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("API key name cannot be empty")
	}
	if len(name) < 3 {
		return fmt.Errorf("API key name must be at least 3 characters long")
	}
	if len(name) > 255 {
		return fmt.Errorf("API key name must be at most 255 characters long")
	}
	return nil
}

// IsActive returns true if the key is active and not past its expiry.
func (k *APIKey) IsActive() bool {
	if k.Status != StatusActive {
		return false
	}
	return !k.IsExpired()
}

// IsExpired returns true if the key has an expiry in the past. Expired keys
// fail closed even while their stored status is still active.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return k.ExpiresAt.Before(time.Now().UTC())
}

// HasScopes reports whether every required scope is present in the granted
// set. An empty requirement always passes.
func (k *APIKey) HasScopes(required ...Scope) bool {
	for _, req := range required {
		found := false
		for _, granted := range k.Scopes {
			if granted == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Revoke marks the key revoked.
func (k *APIKey) Revoke() {
	k.Status = StatusRevoked
	k.UpdatedAt = time.Now().UTC()
}
