package sessions

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errMalformedPayload = errors.New("malformed session payload")
	errBadSignature     = errors.New("session payload signature mismatch")
)

// DecodeError reports a session record whose payload could not be decoded.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode session %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoded is the outcome of decoding one stored session. Exactly one of
// Payload or Err is meaningful.
type Decoded struct {
	Session Session
	Payload Payload
	Err     *DecodeError
}

// OK reports whether the payload decoded successfully.
func (d Decoded) OK() bool { return d.Err == nil }

// Codec signs and encodes session payloads.
//
// Wire format: base64(hex(hmac_sha256(secret, json)) + ":" + json)
type Codec struct {
	secret []byte
}

// NewCodec creates a codec signing with secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("[NewCodec] secret is required")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Encode serializes and signs a payload.
func (c *Codec) Encode(p Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("[Codec.Encode] marshal payload: %w", err)
	}
	signed := c.sign(body) + ":" + string(body)
	return base64.StdEncoding.EncodeToString([]byte(signed)), nil
}

// Decode verifies and deserializes the payload of a session record.
func (c *Codec) Decode(s Session) (Payload, *DecodeError) {
	fail := func(err error) (Payload, *DecodeError) {
		return Payload{}, &DecodeError{Key: s.Key, Err: err}
	}

	raw, err := base64.StdEncoding.DecodeString(s.Data)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", errMalformedPayload, err))
	}

	signature, body, found := strings.Cut(string(raw), ":")
	if !found {
		return fail(errMalformedPayload)
	}
	if !hmac.Equal([]byte(signature), []byte(c.sign([]byte(body)))) {
		return fail(errBadSignature)
	}

	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return fail(fmt.Errorf("%w: %v", errMalformedPayload, err))
	}
	return p, nil
}

// DecodeAll decodes every session, keeping failures alongside successes.
func (c *Codec) DecodeAll(list []Session) []Decoded {
	out := make([]Decoded, 0, len(list))
	for _, s := range list {
		p, err := c.Decode(s)
		out = append(out, Decoded{Session: s, Payload: p, Err: err})
	}
	return out
}

func (c *Codec) sign(body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
