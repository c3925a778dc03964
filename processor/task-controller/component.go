package taskcontroller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/runtime"
	"github.com/rosterlabs/roster/store"
	"github.com/rosterlabs/roster/watch"
)

// Component runs the task controller over its own watcher.
type Component struct {
	config Config
	deps   component.Dependencies
	logger *slog.Logger

	mu         sync.RWMutex
	running    bool
	startTime  time.Time
	cancel     context.CancelFunc
	watcher    *watch.Watcher
	controller *Controller

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a task-controller component from raw configuration.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("parse task-controller config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task-controller config: %w", err)
	}

	return &Component{
		config: config,
		deps:   deps,
		logger: deps.GetLogger().With("component", "task-controller"),
	}, nil
}

// Initialize verifies dependencies before Start.
func (c *Component) Initialize() error {
	if c.deps.NATSClient == nil {
		return fmt.Errorf("task-controller requires a NATS client")
	}
	return nil
}

// Start seeds the informers, runs the initial reconcile and begins
// reacting to events.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("task-controller already running")
	}

	js, err := c.deps.NATSClient.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream not available: %w", err)
	}

	st, err := store.NewNATSStore(ctx, js, c.config.Bucket, c.logger)
	if err != nil {
		return fmt.Errorf("bind store: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	// Watch establishment failures are non-fatal by default: the
	// component starts idle and reconciles nothing until restarted.
	watcher := watch.NewWatcher(st, c.logger)
	if err := watcher.Start(subCtx); err != nil {
		if c.config.StrictWatch {
			cancel()
			return fmt.Errorf("start change feed: %w", err)
		}
		c.logger.Error("change feed unavailable, task reconciliation disabled", "error", err)
		watcher = nil
	}

	var controller *Controller
	if watcher != nil {
		tasks := registry.NewTaskService(st, c.logger)
		teams := registry.NewTeamService(st, c.logger)
		agents := registry.NewAgentService(st, c.logger)
		rt := runtime.NewClient(c.config.RuntimePort, c.config.GetRuntimeTimeout(), c.logger)

		controller = NewController(tasks, teams, agents, rt, c.config.Namespace, c.logger)
		if err := controller.Setup(subCtx, watcher); err != nil {
			cancel()
			watcher.Stop()
			return fmt.Errorf("setup controller: %w", err)
		}
	}

	c.watcher = watcher
	c.controller = controller
	c.cancel = cancel
	c.running = true
	c.startTime = time.Now()
	c.updateLastActivity()
	c.logger.Info("task-controller started", "namespace", c.config.Namespace)
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.controller != nil {
		c.controller.Teardown()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.watcher != nil {
		c.watcher.Stop()
	}

	c.running = false
	c.logger.Info("task-controller stopped")
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "task-controller",
		Type:        "processor",
		Description: "Reconciles task resources against the agent runtime",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionInput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return taskControllerSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

// IsRunning returns whether the component is running.
func (c *Component) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
