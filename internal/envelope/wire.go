package envelope

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Headers is the bit-exact wire header set used by every transport
// adapter regardless of whether the underlying broker calls these
// "headers", "properties", or "application properties".
type Headers struct {
	MessageID       string `json:"MessageId"`
	CorrelationID   string `json:"CorrelationId"`
	CausationID     string `json:"CausationId"`
	PayloadType     string `json:"PayloadType"`
	Hops            string `json:"Hops"`
	SecurityContext string `json:"SecurityContext,omitempty"`
	PolicyTrail     string `json:"PolicyTrail,omitempty"`
}

// ToHeaders renders the envelope's wire headers. policyTrail is supplied
// by the caller (debug builds only).
func (e *Envelope) ToHeaders(policyTrail string) (Headers, error) {
	hopsJSON, err := json.Marshal(e.Hops)
	if err != nil {
		return Headers{}, err
	}

	var scopeJSON string

	if e.Scope != nil {
		b, err := json.Marshal(e.Scope)
		if err != nil {
			return Headers{}, err
		}

		scopeJSON = string(b)
	}

	return Headers{
		MessageID:       e.MessageID.String(),
		CorrelationID:   e.CorrelationID(),
		CausationID:     e.CausationID(),
		PayloadType:     e.PayloadType,
		Hops:            string(hopsJSON),
		SecurityContext: scopeJSON,
		PolicyTrail:     policyTrail,
	}, nil
}

// Marshal encodes the envelope as the JSON payload body.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an envelope previously produced by Marshal.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}

	return &e, nil
}

// MarshalScope encodes a Scope for storage in the outbox/inbox "scope"
// bytea column. Unlike the wire payload, this blob never crosses a
// transport boundary, so it isn't bound by the envelope's JSON
// bit-exactness requirement — msgpack is used here for its more
// compact binary form.
func MarshalScope(s *Scope) ([]byte, error) {
	if s == nil {
		return nil, nil
	}

	return msgpack.Marshal(s)
}

// UnmarshalScope decodes a Scope previously produced by MarshalScope.
func UnmarshalScope(data []byte) (*Scope, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var s Scope
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}
