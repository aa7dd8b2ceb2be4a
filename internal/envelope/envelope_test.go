package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type orderCreated struct {
	OrderID string `json:"orderId"`
}

func TestNew_AddsOriginHop(t *testing.T) {
	e, err := New("publisher-svc", "instance-a", orderCreated{OrderID: "o-1"}, "orderCreated")
	require.NoError(t, err)
	require.Len(t, e.Hops, 1)
	require.Equal(t, HopOrigin, e.Hops[0].Type)
	require.NotEqual(t, zeroUUID(), e.MessageID.String())
}

func TestAddHop_PreservesMessageID(t *testing.T) {
	e, err := New("publisher-svc", "instance-a", orderCreated{OrderID: "o-1"}, "orderCreated")
	require.NoError(t, err)

	id := e.MessageID

	e.AddHop("consumer-svc", "instance-b", "orders", nil)
	require.Equal(t, id, e.MessageID)
	require.Len(t, e.Hops, 2)
	require.Equal(t, HopCurrent, e.LastHop().Type)
	require.Equal(t, "orderCreated", e.LastHop().Metadata["payloadType"])
}

func TestCorrelationID_DerivedFromFirstHop(t *testing.T) {
	e, err := New("publisher-svc", "instance-a", orderCreated{OrderID: "o-1"}, "orderCreated")
	require.NoError(t, err)

	e.AddHop("consumer-svc", "instance-b", "orders", nil)
	e.AddHop("perspective-svc", "instance-c", "orders", nil)

	require.Contains(t, e.CorrelationID(), "instance-a")
}

func TestRoundTrip_MarshalUnmarshal(t *testing.T) {
	original, err := New("publisher-svc", "instance-a", orderCreated{OrderID: "o-1"}, "orderCreated")
	require.NoError(t, err)
	original.AddHop("consumer-svc", "instance-b", "orders", map[string]string{"k": "v"})

	data, err := original.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	require.Equal(t, original.MessageID, decoded.MessageID)
	require.Equal(t, original.Hops, decoded.Hops)
	require.JSONEq(t, string(original.Payload), string(decoded.Payload))
	require.Equal(t, original.CorrelationID(), decoded.CorrelationID())
}

func TestToHeaders(t *testing.T) {
	e, err := New("publisher-svc", "instance-a", orderCreated{OrderID: "o-1"}, "orderCreated")
	require.NoError(t, err)

	h, err := e.ToHeaders("")
	require.NoError(t, err)
	require.Equal(t, e.MessageID.String(), h.MessageID)
	require.Equal(t, "orderCreated", h.PayloadType)
	require.NotEmpty(t, h.Hops)
}

func zeroUUID() string { return "00000000-0000-0000-0000-000000000000" }
