package workflowrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/store"
)

// Component wires the routing engine to its JetStream queue and exposes
// the standard lifecycle.
type Component struct {
	config  Config
	deps    component.Dependencies
	logger  *slog.Logger
	metrics *Metrics

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	cancel    context.CancelFunc
	bus       *bus.NATSBus
	engine    *Engine

	// Listeners added before Start attach when the engine is built.
	pendingStart  []StartListener
	pendingFinish []FinishListener

	messagesProcessed atomic.Int64
	messagesFailed    atomic.Int64

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a workflow-router component from raw configuration.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("parse workflow-router config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow-router config: %w", err)
	}

	return &Component{
		config:  config,
		deps:    deps,
		logger:  deps.GetLogger().With("component", "workflow-router"),
		metrics: NewMetrics(),
	}, nil
}

// Initialize verifies dependencies before Start.
func (c *Component) Initialize() error {
	if c.deps.NATSClient == nil {
		return fmt.Errorf("workflow-router requires a NATS client")
	}
	return nil
}

// AddStartListener registers a callback fired when a record is created.
func (c *Component) AddStartListener(l StartListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		c.engine.AddStartListener(l)
		return
	}
	c.pendingStart = append(c.pendingStart, l)
}

// AddFinishListener registers a callback fired when a record completes.
func (c *Component) AddFinishListener(l FinishListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		c.engine.AddFinishListener(l)
		return
	}
	c.pendingFinish = append(c.pendingFinish, l)
}

// Start binds the store and queue and begins consuming.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("workflow-router already running")
	}

	js, err := c.deps.NATSClient.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream not available: %w", err)
	}

	st, err := store.NewNATSStore(ctx, js, c.config.Bucket, c.logger)
	if err != nil {
		return fmt.Errorf("bind store: %w", err)
	}
	b, err := bus.NewNATSBus(ctx, js, c.logger)
	if err != nil {
		return fmt.Errorf("bind queue stream: %w", err)
	}

	workflows := registry.NewWorkflowService(st, c.logger)
	teams := registry.NewTeamService(st, c.logger)
	records := registry.NewWorkflowRecordService(st, c.logger)

	engine := NewEngine(workflows, teams, records, b, c.config.Namespace, c.logger, c.metrics)
	for _, l := range c.pendingStart {
		engine.AddStartListener(l)
	}
	for _, l := range c.pendingFinish {
		engine.AddFinishListener(l)
	}
	c.pendingStart, c.pendingFinish = nil, nil

	if err := c.metrics.Register(prometheus.DefaultRegisterer); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	if err := b.RegisterCallback(subCtx, c.config.Queue, c.handleMessage); err != nil {
		cancel()
		return fmt.Errorf("register queue handler: %w", err)
	}

	c.bus = b
	c.engine = engine
	c.cancel = cancel
	c.running = true
	c.startTime = time.Now()
	c.logger.Info("workflow-router started", "queue", c.config.Queue, "namespace", c.config.Namespace)
	return nil
}

func (c *Component) handleMessage(ctx context.Context, data []byte) error {
	c.updateLastActivity()
	if err := c.engine.HandleMessage(ctx, data); err != nil {
		c.messagesFailed.Add(1)
		return err
	}
	c.messagesProcessed.Add(1)
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.bus != nil {
		if err := c.bus.Deregister(c.config.Queue); err != nil {
			c.logger.Warn("deregister queue handler", "queue", c.config.Queue, "error", err)
		}
	}
	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("workflow-router stopped",
		"messages_processed", c.messagesProcessed.Load(),
		"messages_failed", c.messagesFailed.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "workflow-router",
		Type:        "processor",
		Description: "Advances workflow records by routing initiate and report messages to step triggers",
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
	return workflowRouterSchema
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
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.messagesFailed.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
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
