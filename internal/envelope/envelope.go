// Package envelope is the on-wire and in-memory carrier of a domain
// message: identity, causation chain, payload, and security scope
//.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/whizbang-io/whizbang/pkg/assert"
)

// HopType distinguishes the message's point of origin from every
// subsequent append along its causation chain.
type HopType string

const (
	HopOrigin  HopType = "origin"
	HopCurrent HopType = "current"
)

// Hop is one link in an envelope's causation chain. Every service
// appends exactly one current hop on ingress and one on egress.
type Hop struct {
	Type       HopType           `json:"type"`
	Service    string            `json:"service"`
	InstanceID string            `json:"instanceId"`
	Topic      string            `json:"topic,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Scope is the optional security principal set carried alongside a
// message so receptors can authorize without a second round trip.
type Scope struct {
	Tenant      string   `json:"tenant,omitempty"`
	User        string   `json:"user,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Envelope is the unit of transport: a MessageId, its payload, the full
// hop chain, and an optional scope. MessageId never changes across hops.
type Envelope struct {
	MessageID   uuid.UUID       `json:"messageId"`
	Payload     json.RawMessage `json:"payload"`
	PayloadType string          `json:"payloadType"`
	Hops        []Hop           `json:"hops"`
	Scope       *Scope          `json:"scope,omitempty"`
}

// New builds an envelope with a fresh UUIDv7 MessageId and a single
// origin hop recording where the message was first produced.
func New(service, instanceID string, payload any, payloadType string) (*Envelope, error) {
	assert.NotEmpty(service, "envelope: service must not be empty")
	assert.NotEmpty(instanceID, "envelope: instanceID must not be empty")

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		MessageID:   uuid.Must(uuid.NewV7()),
		Payload:     raw,
		PayloadType: payloadType,
		Hops: []Hop{
			{
				Type:       HopOrigin,
				Service:    service,
				InstanceID: instanceID,
				Timestamp:  time.Now().UTC(),
				Metadata:   map[string]string{"payloadType": payloadType},
			},
		},
	}, nil
}

// AddHop appends a current hop tagged with this service's identity and
// (for outgoing hops) the outgoing routing context, including
// PayloadType so the receiver can deserialize without a global registry.
func (e *Envelope) AddHop(service, instanceID, topic string, metadata map[string]string) {
	assert.NotNil(e, "envelope: AddHop called on nil envelope")

	if metadata == nil {
		metadata = map[string]string{}
	}

	metadata["payloadType"] = e.PayloadType

	e.Hops = append(e.Hops, Hop{
		Type:       HopCurrent,
		Service:    service,
		InstanceID: instanceID,
		Topic:      topic,
		Timestamp:  time.Now().UTC(),
		Metadata:   metadata,
	})
}

// CorrelationID is derived from the first hop — the message's origin —
// so distributed tracing can associate fan-outs with their root cause.
func (e *Envelope) CorrelationID() string {
	if len(e.Hops) == 0 {
		return e.MessageID.String()
	}

	return e.MessageID.String() + ":" + e.Hops[0].InstanceID
}

// CausationID is the MessageId of the hop immediately preceding the
// latest current hop, or empty if this envelope has only its origin hop.
func (e *Envelope) CausationID() string {
	if len(e.Hops) < 2 {
		return ""
	}

	return e.MessageID.String()
}

// LastHop returns the most recently appended hop, or the zero Hop if
// none exist.
func (e *Envelope) LastHop() Hop {
	if len(e.Hops) == 0 {
		return Hop{}
	}

	return e.Hops[len(e.Hops)-1]
}
