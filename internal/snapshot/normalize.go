package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize returns the canonical serialization of v: JSON with the keys of
// every object sorted (struct fields included), no insignificant whitespace
// and no HTML escaping. Values that are equal modulo key order normalize to
// the same string.
func Normalize(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("normalize: marshal: %w", err)
	}

	// decoding into `any` turns every object into a map, which encoding/json
	// always writes with sorted keys
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	err = dec.Decode(&generic)
	if err != nil {
		return "", fmt.Errorf("normalize: decode: %w", err)
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	err = enc.Encode(generic)
	if err != nil {
		return "", fmt.Errorf("normalize: encode: %w", err)
	}
	return strings.TrimSuffix(out.String(), "\n"), nil
}

// Hash returns the lowercase hex SHA-256 digest of a canonical string.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ParseFlat decodes a canonical final grades snapshot, an empty string is
// an empty snapshot.
func ParseFlat(canonical string) (Flat, error) {
	out := Flat{}
	if strings.TrimSpace(canonical) == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(canonical), &out)
	if err != nil {
		return Flat{}, fmt.Errorf("parse flat snapshot: %w", err)
	}
	return out, nil
}

// ParseGradebook decodes a canonical gradebook snapshot. Fields missing from
// older snapshots decode to their zero value and unknown fields are ignored.
func ParseGradebook(canonical string) (Gradebook, error) {
	var out Gradebook
	if strings.TrimSpace(canonical) == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(canonical), &out)
	if err != nil {
		return Gradebook{}, fmt.Errorf("parse gradebook snapshot: %w", err)
	}
	return out, nil
}
