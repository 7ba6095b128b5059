// Package ingress implements the external boundary adapters: value
// encoding and the command structs produce/fetch/create_topic translate
// into broker and fetch-coordinator calls.
package ingress

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/stijnveenman/pigeon/internal/pigeonerr"
)

// Encoding selects how produce/fetch command string fields map to bytes.
type Encoding int

const (
	// Identity treats the string as UTF-8 bytes directly.
	Identity Encoding = iota
	// Base64 decodes/encodes the string as standard base64.
	Base64
)

// Decode converts value into bytes per the selected encoding.
// ErrEncodingError is returned for malformed base64 or non-UTF-8 input.
func (e Encoding) Decode(value string) ([]byte, error) {
	switch e {
	case Identity:
		if !utf8.ValidString(value) {
			return nil, pigeonerr.ErrEncodingError
		}
		return []byte(value), nil
	case Base64:
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, pigeonerr.ErrEncodingError
		}
		return b, nil
	default:
		return nil, pigeonerr.ErrEncodingError
	}
}

// Encode converts bytes into a string per the selected encoding.
// ErrEncodingError surfaces for Identity when data is not valid UTF-8.
func (e Encoding) Encode(data []byte) (string, error) {
	switch e {
	case Identity:
		if !utf8.Valid(data) {
			return "", pigeonerr.ErrEncodingError
		}
		return string(data), nil
	case Base64:
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", pigeonerr.ErrEncodingError
	}
}
