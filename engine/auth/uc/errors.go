package uc

import "errors"

// ErrKeyNotFound is returned when an API key is not found in the repository
var ErrKeyNotFound = errors.New("API key not found")

// ErrInvalidKey is returned when a presented credential does not resolve to
// an active key. Deliberately indistinguishable from an unknown key.
var ErrInvalidKey = errors.New("invalid API key")

// ErrExpiredKey is returned when the credential resolved but is past expiry
var ErrExpiredKey = errors.New("API key expired")

// ErrInsufficientScope is returned when the key lacks a required scope
var ErrInsufficientScope = errors.New("insufficient scope")

// ErrNotOwner is returned when a caller acts on another principal's key
var ErrNotOwner = errors.New("API key does not belong to caller")
