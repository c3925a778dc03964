package rosterapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/rosterlabs/roster/activity"
	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/runtime"
	"github.com/rosterlabs/roster/store"
	"github.com/rosterlabs/roster/watch"
)

// Component owns the HTTP server and the change-feed watcher.
type Component struct {
	config Config
	deps   component.Dependencies
	logger *slog.Logger

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	cancel    context.CancelFunc
	server    *http.Server
	watcher   *watch.Watcher
	activity  *activity.PostgresStore
	github    WebhookForwarder

	requestsServed atomic.Int64
	serverFailures atomic.Int64

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a roster-api component from raw configuration.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("parse roster-api config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster-api config: %w", err)
	}

	return &Component{
		config: config,
		deps:   deps,
		logger: deps.GetLogger().With("component", "roster-api"),
	}, nil
}

// Initialize verifies dependencies before Start.
func (c *Component) Initialize() error {
	if c.deps.NATSClient == nil {
		return fmt.Errorf("roster-api requires a NATS client")
	}
	return nil
}

// SetWebhookForwarder wires the GitHub integration in before Start.
func (c *Component) SetWebhookForwarder(f WebhookForwarder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.github = f
}

// Start binds storage, starts the watcher and serves HTTP.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("roster-api already running")
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

	subCtx, cancel := context.WithCancel(ctx)

	// Watch establishment failures are non-fatal by default: the API
	// keeps serving CRUD while /resource-events reports unavailable.
	watcher := watch.NewWatcher(st, c.logger)
	if err := watcher.Start(subCtx); err != nil {
		if c.config.StrictWatch {
			cancel()
			return fmt.Errorf("start change feed: %w", err)
		}
		c.logger.Error("change feed unavailable, resource event streaming disabled", "error", err)
		watcher = nil
	}

	var activityStore activity.Store
	if c.config.PostgresDSN != "" {
		pg, err := activity.NewPostgresStore(subCtx, c.config.PostgresDSN, c.logger)
		if err != nil {
			cancel()
			if watcher != nil {
				watcher.Stop()
			}
			return fmt.Errorf("open activity log: %w", err)
		}
		c.activity = pg
		activityStore = pg
	}

	services := Services{
		Agents:     registry.NewAgentService(st, c.logger),
		Identities: registry.NewIdentityService(st, c.logger),
		Teams:      registry.NewTeamService(st, c.logger),
		Workflows:  registry.NewWorkflowService(st, c.logger),
		Workspaces: registry.NewWorkspaceService(st, c.logger),
		Tasks:      registry.NewTaskService(st, c.logger),
		Records:    registry.NewWorkflowRecordService(st, c.logger),
	}
	runtimeClient := runtime.NewClient(c.config.RuntimePort, c.config.GetRuntimeTimeout(), c.logger)
	handler := NewHTTPHandler(services, b, watcher, activityStore, runtimeClient, c.github, c.config.Namespace, c.logger)

	mux := http.NewServeMux()
	handler.RegisterHTTPHandlers(APIPrefix, mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           c.instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.serverFailures.Add(1)
			c.logger.Error("http server failed", "error", err)
		}
	}()

	c.server = server
	c.watcher = watcher
	c.cancel = cancel
	c.running = true
	c.startTime = time.Now()
	c.logger.Info("roster-api started", "port", c.config.Port, "namespace", c.config.Namespace)
	return nil
}

func (c *Component) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.updateLastActivity()
		c.requestsServed.Add(1)
		next.ServeHTTP(w, r)
	})
}

// Stop gracefully stops the component.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if c.server != nil {
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("http shutdown", "error", err)
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.activity != nil {
		c.activity.Close()
	}

	c.running = false
	c.logger.Info("roster-api stopped", "requests_served", c.requestsServed.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "roster-api",
		Type:        "processor",
		Description: "REST and SSE surface of the control plane with status ingest and command endpoints",
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
	return rosterAPISchema
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
		ErrorCount: int(c.serverFailures.Load()),
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
