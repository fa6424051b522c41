// Package kv is the durable key-value store backing run state: the partial
// record cache, run counters and the details summary each live under one
// well-known key. An absent key always reads as "no prior state", never as
// an error.
package kv

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Well-known state keys.
const (
	KeyCache     = "CACHE"
	KeyStats     = "STATS"
	KeyDetails   = "DETAILS"
	KeyStoredIDs = "stored-ids"
)

// Store is the durable key-value collaborator. Get returns (nil, nil) for
// an absent key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Migrate(ctx context.Context) error
	Close() error
}

// GetJSON reads key and unmarshals it into out. It reports whether the key
// was present; an absent key leaves out untouched.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, eris.Wrapf(err, "kv: unmarshal %s", key)
	}
	return true, nil
}

// SetJSON marshals value and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return eris.Wrapf(err, "kv: marshal %s", key)
	}
	return s.Set(ctx, key, raw)
}
