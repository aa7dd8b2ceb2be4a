package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whizbang-io/whizbang/internal/envelope"
)

type orderCreated struct{ ID string }

func (o orderCreated) AggregateID() string { return o.ID }

// TestEngine_FirstMatchWins checks that a message matching both a
// high-priority tag policy and an aggregate-type policy is routed by
// whichever was registered first, and that later policies are never
// even evaluated.
func TestEngine_FirstMatchWins(t *testing.T) {
	e := NewEngine()

	e.Register(Policy{
		Name:      "priority-high",
		Predicate: func(c *Context) bool { return c.HasTag("priority:high") },
		Build:     func(c *Context) Configuration { return NewConfiguration("hp", c.GetAggregateId()) },
	})
	e.Register(Policy{
		Name:      "order-aggregate",
		Predicate: MatchesAggregate[orderCreated],
		Build:     func(c *Context) Configuration { return NewConfiguration("orders", c.GetAggregateId()) },
	})
	e.Register(Policy{
		Name:      "default",
		Predicate: func(*Context) bool { return true },
		Build:     func(c *Context) Configuration { return NewConfiguration("default", c.GetAggregateId()) },
	})

	msg := orderCreated{ID: "order-1"}
	env, err := envelope.New("publisher-svc", "instance-a", msg, "OrderCreated")
	require.NoError(t, err)
	env.AddHop("publisher-svc", "instance-a", "orders", map[string]string{"priority:high": "true"})

	ctx := NewContext(context.Background(), msg, "OrderCreated", env, "test", nil)

	cfg, err := e.Evaluate(ctx)
	require.NoError(t, err)
	require.Equal(t, "hp", cfg.Topic)

	trail := ctx.Trail()
	require.Len(t, trail, 1)
	require.Equal(t, "priority-high", trail[0].PolicyName)
	require.True(t, trail[0].Matched)
}

func TestEngine_NoMatchWithoutDefault(t *testing.T) {
	e := NewEngine()
	e.Register(Policy{
		Name:      "order-aggregate",
		Predicate: func(*Context) bool { return false },
		Build:     func(c *Context) Configuration { return Configuration{} },
	})

	ctx := NewContext(context.Background(), nil, "Unknown", nil, "test", nil)
	_, err := e.Evaluate(ctx)
	require.Error(t, err)
	require.IsType(t, ErrNoPolicyMatched{}, err)
}

func TestEngine_TrailRecordsEveryEvaluation(t *testing.T) {
	e := NewEngine()
	e.Register(Policy{Name: "a", Predicate: func(*Context) bool { return false }, Build: func(c *Context) Configuration { return Configuration{} }})
	e.Register(Policy{Name: "b", Predicate: func(*Context) bool { return true }, Build: func(c *Context) Configuration { return NewConfiguration("b-topic", "") }})
	e.Register(Policy{Name: "c", Predicate: func(*Context) bool { return true }, Build: func(c *Context) Configuration { return NewConfiguration("c-topic", "") }})

	ctx := NewContext(context.Background(), nil, "X", nil, "test", nil)
	cfg, err := e.Evaluate(ctx)
	require.NoError(t, err)
	require.Equal(t, "b-topic", cfg.Topic)

	trail := ctx.Trail()
	require.Len(t, trail, 2)
	require.False(t, trail[0].Matched)
	require.True(t, trail[1].Matched)
}

func TestHashPartitionRouter_Stable(t *testing.T) {
	r := HashPartitionRouter{}
	a := r.Route("order-1", 16)
	b := r.Route("order-1", 16)
	require.Equal(t, a, b)
}

func TestRoundRobinPartitionRouter_Spreads(t *testing.T) {
	r := &RoundRobinPartitionRouter{}
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		seen[r.Route("x", 4)] = true
	}
	require.Len(t, seen, 4)
}
