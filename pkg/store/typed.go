package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Typed accessors encode values the same way on every backend: integers as
// base-10 text, times as RFC 3339 UTC, structured values as JSON.

// GetString reads a UTF-8 string.
func GetString(ctx context.Context, s Store, entity, key string) (string, error) {
	b, err := s.Get(ctx, entity, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SetString writes a UTF-8 string.
func SetString(ctx context.Context, s Store, entity, key, value string) error {
	return s.Set(ctx, entity, key, []byte(value))
}

// GetInt reads a base-10 integer.
func GetInt(ctx context.Context, s Store, entity, key string) (int64, error) {
	b, err := s.Get(ctx, entity, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, keyErr("decode", entity, key, fmt.Errorf("invalid integer: %w", err))
	}
	return n, nil
}

// SetInt writes a base-10 integer.
func SetInt(ctx context.Context, s Store, entity, key string, value int64) error {
	return s.Set(ctx, entity, key, strconv.AppendInt(nil, value, 10))
}

// GetTime reads an RFC 3339 timestamp.
func GetTime(ctx context.Context, s Store, entity, key string) (time.Time, error) {
	b, err := s.Get(ctx, entity, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Time{}, keyErr("decode", entity, key, fmt.Errorf("invalid time: %w", err))
	}
	return t, nil
}

// SetTime writes t as an RFC 3339 UTC timestamp.
func SetTime(ctx context.Context, s Store, entity, key string, t time.Time) error {
	return s.Set(ctx, entity, key, []byte(t.UTC().Format(time.RFC3339Nano)))
}

// GetJSON decodes a JSON value into v.
func GetJSON(ctx context.Context, s Store, entity, key string, v any) error {
	b, err := s.Get(ctx, entity, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return keyErr("decode", entity, key, fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

// SetJSON encodes v as JSON.
func SetJSON(ctx context.Context, s Store, entity, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return keyErr("encode", entity, key, err)
	}
	return s.Set(ctx, entity, key, b)
}
