// Package inject wraps functions so they receive secrets resolved through a
// cache on every call.
//
// The secret is read when the wrapped function runs, not when it is wrapped,
// so callers always see the value the cache currently holds.
package inject

import (
	"context"
	"encoding/json"
)

// Getter reads secret strings. *cache.SecretCache satisfies it.
type Getter interface {
	GetSecretString(ctx context.Context, secretID, versionStage string) (string, error)
}

// String returns a function that reads secretID and passes it to fn
func String(g Getter, secretID string, fn func(ctx context.Context, secret string) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		secret, err := g.GetSecretString(ctx, secretID, "")
		if err != nil {
			return err
		}
		return fn(ctx, secret)
	}
}

// JSON returns a function that reads secretID as a JSON object and passes fn
// the values selected by fields. fields maps the name fn sees to the key in
// the secret, e.g. {"user": "username", "pass": "password"}.
func JSON(g Getter, secretID string, fields map[string]string, fn func(ctx context.Context, values map[string]any) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		secret, err := g.GetSecretString(ctx, secretID, "")
		if err != nil {
			return err
		}

		var doc map[string]any
		if err := json.Unmarshal([]byte(secret), &doc); err != nil {
			return ErrDecode(secretID)
		}

		values := make(map[string]any, len(fields))
		for name, key := range fields {
			v, ok := doc[key]
			if !ok {
				return ErrKey(secretID, key)
			}
			values[name] = v
		}
		return fn(ctx, values)
	}
}

// Struct returns a function that decodes secretID as JSON into a T and passes
// it to fn
func Struct[T any](g Getter, secretID string, fn func(ctx context.Context, value T) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		secret, err := g.GetSecretString(ctx, secretID, "")
		if err != nil {
			return err
		}

		var value T
		if err := json.Unmarshal([]byte(secret), &value); err != nil {
			return ErrDecode(secretID)
		}
		return fn(ctx, value)
	}
}
