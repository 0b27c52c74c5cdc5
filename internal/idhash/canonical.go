package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Fields is a flat record to be hashed. Keys are serialized in sorted order.
type Fields map[string]any

// Hash computes SHA256 over the canonical JSON form of fields.
// Canonical form: keys sorted, times as RFC3339Nano UTC, non-finite floats as strings.
// Returns hex-encoded hash (64 characters).
func Hash(fields Fields) (string, error) {
	data, err := Canonical(fields)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Canonical returns the canonical JSON bytes of fields.
func Canonical(fields Fields) ([]byte, error) {
	norm := make(map[string]any, len(fields))
	for k, v := range fields {
		norm[k] = normalize(v)
	}
	data, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return data, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
		return x
	case *float64:
		if x == nil {
			return nil
		}
		return normalize(*x)
	case map[string]float64:
		out := make(map[string]any, len(x))
		for k, f := range x {
			out[k] = normalize(f)
		}
		return out
	case fmt.Stringer:
		return x.String()
	}
	return v
}

// mustHash is used by the typed helpers whose fields are always JSON-safe.
func mustHash(fields Fields) string {
	h, err := Hash(fields)
	if err != nil {
		panic(err)
	}
	return h
}
