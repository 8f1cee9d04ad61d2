// Package attest binds a payload to a secret-holding identity with a keyed MAC
// computed over a pinned binary encoding of the payload.
package attest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MACSize is the length of an HMAC-SHA256 code in bytes
const MACSize = sha256.Size

// payloadFields is the fixed number of elements in the encoded payload array
const payloadFields = 3

// Sentinel errors for encoding and decoding payloads
var (
	ErrEmptySource       = errors.New("payload source is empty")
	ErrEmptySecret       = errors.New("attestation secret is empty")
	ErrTimestampRange    = errors.New("payload timestamp is outside the encodable range")
	ErrMalformedEncoding = errors.New("malformed payload encoding")
)

// The encodable timestamp range is whatever fits into int64 unix nanoseconds
var (
	minTimestamp = time.Unix(0, math.MinInt64)
	maxTimestamp = time.Unix(0, math.MaxInt64)
)

// Payload is the attested data: who produced it, when, and the bytes themselves
type Payload struct {
	Source    string
	Timestamp time.Time
	Data      []byte
}

// Package is a payload together with the code that proves it
type Package struct {
	Payload
	MAC []byte
}

// Encode returns the canonical encoding of p.
//
// The layout is a msgpack array of exactly three elements:
//
//	[source: str, timestamp: int64 unix nanoseconds (UTC), data: bin]
//
// Integers are always written as int64 (0xd3) and data is always written as bin
// (an absent payload is encoded as an empty bin), so the same payload produces
// the same bytes on every run and every architecture.
func Encode(p Payload) ([]byte, error) {
	if p.Source == "" {
		return nil, ErrEmptySource
	}
	if p.Timestamp.Before(minTimestamp) || p.Timestamp.After(maxTimestamp) {
		return nil, ErrTimestampRange
	}

	data := p.Data
	if data == nil {
		data = []byte{}
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeArrayLen(payloadFields); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(p.Source); err != nil {
		return nil, err
	}
	if err := enc.EncodeInt64(p.Timestamp.UnixNano()); err != nil {
		return nil, err
	}
	if err := enc.EncodeBytes(data); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode back into a payload
func Decode(b []byte) (Payload, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
	}
	if n != payloadFields {
		return Payload{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedEncoding, payloadFields, n)
	}

	source, err := dec.DecodeString()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: source: %w", ErrMalformedEncoding, err)
	}

	nanos, err := dec.DecodeInt64()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: timestamp: %w", ErrMalformedEncoding, err)
	}

	data, err := dec.DecodeBytes()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: data: %w", ErrMalformedEncoding, err)
	}
	if data == nil {
		data = []byte{}
	}

	return Payload{
		Source:    source,
		Timestamp: time.Unix(0, nanos).UTC(),
		Data:      data,
	}, nil
}

// Attest encodes the payload and computes its code with the given secret.
// It has no side effects.
func Attest(p Payload, secret []byte) (Package, error) {
	if len(secret) == 0 {
		return Package{}, ErrEmptySecret
	}

	encoded, err := Encode(p)
	if err != nil {
		return Package{}, err
	}

	return Package{
		Payload: p,
		MAC:     sum(encoded, secret),
	}, nil
}

// Verify recomputes the code over the package's payload and compares it to the
// supplied one in constant time. Any malformed or missing field yields false.
func Verify(pkg Package, secret []byte) bool {
	if len(secret) == 0 || len(pkg.MAC) != MACSize {
		return false
	}

	encoded, err := Encode(pkg.Payload)
	if err != nil {
		return false
	}

	return hmac.Equal(sum(encoded, secret), pkg.MAC)
}

func sum(encoded, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(encoded)
	return mac.Sum(nil)
}
