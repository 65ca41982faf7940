// Package fingerprint derives deterministic digests from submission payloads.
// The digest doubles as the result-cache key and the dedup key: two
// submissions whose payloads canonicalize to the same bytes are the same
// logical job.
package fingerprint

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// ErrMalformedPayload is returned when the payload cannot be canonicalized.
var ErrMalformedPayload = errors.New("malformed payload")

// Fingerprint is the hex-encoded BLAKE2b-256 digest of a canonical payload.
type Fingerprint string

// String returns the hex digest.
func (f Fingerprint) String() string { return string(f) }

// Compute canonicalizes the raw payload and digests it. Formatting-only
// differences (whitespace, key order) never change the result; any change to
// values or structure does.
func Compute(raw json.RawMessage) (Fingerprint, error) {
	canonical, err := Canonical(raw)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(canonical)
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

// Canonical re-serializes payload JSON with object keys sorted and all
// insignificant whitespace removed. Number literals are preserved verbatim so
// canonicalization never loses precision. The root must be an object or an
// array; scalar payloads are rejected.
func Canonical(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// Trailing garbage after the first JSON value is still malformed input.
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedPayload)
	}

	switch tree.(type) {
	case map[string]any, []any:
	default:
		return nil, fmt.Errorf("%w: root must be a JSON object or array", ErrMalformedPayload)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(t.String())
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: unsupported JSON value %T", ErrMalformedPayload, v)
	}
	return nil
}
