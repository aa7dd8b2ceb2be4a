// Command whizbangd is a reference daemon wiring internal/bootstrap
// with a minimal policy and receptor. Real deployments embed
// internal/bootstrap directly and supply their own Application instead
// of running this binary.
package main

import (
	"context"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"

	"github.com/whizbang-io/whizbang/internal/bootstrap"
	"github.com/whizbang-io/whizbang/internal/envelope"
	"github.com/whizbang-io/whizbang/internal/policy"
	"github.com/whizbang-io/whizbang/internal/worker"
)

func main() {
	libCommons.InitLocalEnvConfig()

	cfg, err := bootstrap.Load()
	if err != nil {
		panic(err)
	}

	engine := policy.NewEngine()
	engine.Register(policy.Policy{
		Name:      "default",
		Predicate: func(*policy.Context) bool { return true },
		Build: func(ctx *policy.Context) policy.Configuration {
			c := policy.NewConfiguration(ctx.MessageType, ctx.MessageType)
			c.PublishTargets = []policy.PublishTarget{{Transport: "rabbitmq", Destination: ctx.MessageType}}

			return c
		},
	})

	app := bootstrap.Application{
		PolicyEngine: engine,
		Receptors: map[string]worker.Receptor{
			"default": func(_ context.Context, _ *envelope.Envelope) error { return nil },
		},
	}

	svc, err := bootstrap.New(cfg, app, nil)
	if err != nil {
		panic(err)
	}

	svc.Run()
}
