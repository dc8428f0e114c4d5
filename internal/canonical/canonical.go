// Package canonical is the single serialization used by every hash site:
// sorted object keys, no insignificant whitespace, numbers re-encoded through float64,
// arrays kept in caller order (callers stable-sort rows before hashing).
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HashPrefix is prepended to every hex digest
const HashPrefix = "sha256:"

// Marshal returns the canonical JSON encoding of v
func Marshal(v interface{}) ([]byte, error) {
	tree, err := ToTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToTree converts v into its generic JSON tree (maps, slices, json.Number, string, bool, nil)
func ToTree(v interface{}) (interface{}, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("canonical: marshal: %w", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	return tree, nil
}

// Hash returns "sha256:<hex>" of the canonical encoding of v
func Hash(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns "sha256:<hex>" of raw bytes
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// HashParts hashes string parts joined with a unit separator
func HashParts(parts ...string) string {
	return HashBytes([]byte(strings.Join(parts, "\x1f")))
}

func encode(buf *bytes.Buffer, v interface{}) error {
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
		s, err := normalizeNumber(t)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case string:
		encodeString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
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
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

// normalizeNumber re-encodes through float64 so "1.0", "1" and "1e0" hash identically
func normalizeNumber(n json.Number) (string, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return "", fmt.Errorf("canonical: bad number %q: %w", n, err)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("canonical: number %q: %w", n, err)
	}
	// integral floats collapse to the integer form
	if i, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return string(b), nil
}

func encodeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
}
