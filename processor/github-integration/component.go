package githubintegration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// Component runs the GitHub integration: webhook handling, the
// workspace queue consumer and the git pusher.
type Component struct {
	config Config
	deps   component.Dependencies
	logger *slog.Logger

	mu          sync.RWMutex
	running     bool
	startTime   time.Time
	cancel      context.CancelFunc
	bus         *bus.NATSBus
	queue       string
	integration *Integration

	messagesProcessed atomic.Int64
	messagesFailed    atomic.Int64

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a github-integration component from raw configuration.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("parse github-integration config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid github-integration config: %w", err)
	}

	return &Component{
		config: config,
		deps:   deps,
		logger: deps.GetLogger().With("component", "github-integration"),
	}, nil
}

// Initialize verifies dependencies before Start.
func (c *Component) Initialize() error {
	if c.deps.NATSClient == nil {
		return fmt.Errorf("github-integration requires a NATS client")
	}
	return nil
}

// Start binds the store and bus and begins consuming the workspace queue.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("github-integration already running")
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
		return fmt.Errorf("bind bus: %w", err)
	}

	workspaces := registry.NewWorkspaceService(st, c.logger)
	pusher := NewGitPusher(c.config.Workdir, c.config.Token, c.config.APIBase, c.config.CloneBase, c.logger)
	integration := NewIntegration(workspaces, b, pusher, []byte(c.config.WebhookSecret),
		c.config.Workflow, c.config.Namespace, c.logger)

	subCtx, cancel := context.WithCancel(ctx)
	queue := bus.WorkspaceQueue(c.config.Namespace)
	if err := b.RegisterCallback(subCtx, queue, c.handleMessage); err != nil {
		cancel()
		return fmt.Errorf("consume workspace queue: %w", err)
	}

	c.bus = b
	c.queue = queue
	c.integration = integration
	c.cancel = cancel
	c.running = true
	c.startTime = time.Now()
	c.updateLastActivity()
	c.logger.Info("github-integration started", "workflow", c.config.Workflow, "namespace", c.config.Namespace)
	return nil
}

func (c *Component) handleMessage(ctx context.Context, data []byte) error {
	c.updateLastActivity()
	c.mu.RLock()
	integration := c.integration
	c.mu.RUnlock()
	if integration == nil {
		return fmt.Errorf("github-integration not running")
	}
	if err := integration.HandleWorkspaceMessage(ctx, data); err != nil {
		c.messagesFailed.Add(1)
		return err
	}
	c.messagesProcessed.Add(1)
	return nil
}

// HandleWebhook forwards a webhook delivery to the integration. It
// satisfies the API processor's forwarder interface so wiring can
// happen before either component starts.
func (c *Component) HandleWebhook(ctx context.Context, signature, eventType string, body []byte) error {
	c.mu.RLock()
	integration := c.integration
	c.mu.RUnlock()
	if integration == nil {
		return fmt.Errorf("%w: github-integration not running", resource.ErrNotReady)
	}
	c.updateLastActivity()
	return integration.HandleWebhook(ctx, signature, eventType, body)
}

// OnWorkflowFinish forwards router finish events to the integration.
func (c *Component) OnWorkflowFinish(event resource.WorkflowFinishEvent) {
	c.mu.RLock()
	integration := c.integration
	c.mu.RUnlock()
	if integration == nil {
		return
	}
	integration.OnWorkflowFinish(event)
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.bus != nil {
		if err := c.bus.Deregister(c.queue); err != nil {
			c.logger.Warn("deregister workspace queue", "error", err)
		}
	}
	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("github-integration stopped",
		"processed", c.messagesProcessed.Load(),
		"failed", c.messagesFailed.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "github-integration",
		Type:        "processor",
		Description: "Bridges GitHub issues and pull requests to workflows",
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
	return githubIntegrationSchema
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
