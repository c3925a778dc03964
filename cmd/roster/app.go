package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/rosterlabs/roster/config"
	githubintegration "github.com/rosterlabs/roster/processor/github-integration"
	rosterapi "github.com/rosterlabs/roster/processor/roster-api"
	taskcontroller "github.com/rosterlabs/roster/processor/task-controller"
	workflowrouter "github.com/rosterlabs/roster/processor/workflow-router"
)

// processor is the lifecycle surface the app drives.
type processor interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

type namedProcessor struct {
	name string
	proc processor
}

// app owns the four processors and their cross-wiring.
type app struct {
	logger     *slog.Logger
	processors []namedProcessor
	started    []namedProcessor
}

// newApp builds and wires the processors from the loaded configuration.
// The GitHub integration hangs off the other two: the API forwards
// webhooks to it and the router reports finished workflows to it.
func newApp(cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger, strictWatch bool) (*app, error) {
	deps := component.Dependencies{
		NATSClient: natsClient,
		Logger:     logger,
	}

	router, err := buildComponent[*workflowrouter.Component]("workflow-router", workflowrouter.NewComponent, deps, map[string]any{
		"namespace": cfg.Server.Namespace,
		"bucket":    cfg.Server.Bucket,
	})
	if err != nil {
		return nil, err
	}

	api, err := buildComponent[*rosterapi.Component]("roster-api", rosterapi.NewComponent, deps, map[string]any{
		"port":            cfg.Server.Port,
		"namespace":       cfg.Server.Namespace,
		"bucket":          cfg.Server.Bucket,
		"postgres_dsn":    cfg.Postgres.DSN,
		"runtime_port":    cfg.Runtime.Port,
		"runtime_timeout": cfg.Runtime.Timeout.String(),
		"strict_watch":    strictWatch,
	})
	if err != nil {
		return nil, err
	}

	controller, err := buildComponent[*taskcontroller.Component]("task-controller", taskcontroller.NewComponent, deps, map[string]any{
		"namespace":       cfg.Server.Namespace,
		"bucket":          cfg.Server.Bucket,
		"runtime_port":    cfg.Runtime.Port,
		"runtime_timeout": cfg.Runtime.Timeout.String(),
		"strict_watch":    strictWatch,
	})
	if err != nil {
		return nil, err
	}

	github, err := buildComponent[*githubintegration.Component]("github-integration", githubintegration.NewComponent, deps, map[string]any{
		"webhook_secret": cfg.Github.WebhookSecret,
		"token":          cfg.Github.Token,
		"workflow":       cfg.Github.Workflow,
		"namespace":      cfg.Server.Namespace,
		"bucket":         cfg.Server.Bucket,
		"workdir":        cfg.Github.Workdir,
		"api_base":       cfg.Github.APIBase,
		"clone_base":     cfg.Github.CloneBase,
	})
	if err != nil {
		return nil, err
	}

	api.SetWebhookForwarder(github)
	router.AddFinishListener(github.OnWorkflowFinish)

	return &app{
		logger: logger,
		processors: []namedProcessor{
			{"github-integration", github},
			{"workflow-router", router},
			{"task-controller", controller},
			{"roster-api", api},
		},
	}, nil
}

// buildComponent constructs one processor from its factory and a sparse
// config; omitted keys keep the processor's defaults.
func buildComponent[T processor](name string, factory func(json.RawMessage, component.Dependencies) (component.Discoverable, error), deps component.Dependencies, conf map[string]any) (T, error) {
	var zero T

	raw, err := json.Marshal(conf)
	if err != nil {
		return zero, fmt.Errorf("marshal %s config: %w", name, err)
	}
	built, err := factory(raw, deps)
	if err != nil {
		return zero, fmt.Errorf("build %s: %w", name, err)
	}
	typed, ok := built.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected component type %T", name, built)
	}
	return typed, nil
}

// Start initializes and starts every processor in order, unwinding the
// already-started ones on failure. The API starts last so it never
// accepts requests the rest of the plane cannot serve.
func (a *app) Start(ctx context.Context) error {
	for _, p := range a.processors {
		if err := p.proc.Initialize(); err != nil {
			a.stopStarted(10 * time.Second)
			return fmt.Errorf("initialize %s: %w", p.name, err)
		}
		if err := p.proc.Start(ctx); err != nil {
			a.stopStarted(10 * time.Second)
			return fmt.Errorf("start %s: %w", p.name, err)
		}
		a.logger.Info("Processor started", "name", p.name)
		a.started = append(a.started, p)
	}
	return nil
}

// Stop stops the processors in reverse start order.
func (a *app) Stop(timeout time.Duration) {
	a.stopStarted(timeout)
}

func (a *app) stopStarted(timeout time.Duration) {
	for i := len(a.started) - 1; i >= 0; i-- {
		p := a.started[i]
		if err := p.proc.Stop(timeout); err != nil {
			a.logger.Error("Error stopping processor", "name", p.name, "error", err)
		}
	}
	a.started = nil
}
