// Package workflowrouter advances workflow executions. It consumes the
// router queue, creates records on initiate messages, applies step
// reports, triggers steps whose inputs are satisfied, schedules
// retries, and fires start/finish events.
package workflowrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/inbox"
	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/resource"
)

// StartListener observes record creation. FinishListener observes
// completion. Both run asynchronously with per-listener isolation.
type (
	StartListener  func(event resource.WorkflowStartEvent)
	FinishListener func(event resource.WorkflowFinishEvent)
)

// Engine holds the routing logic, independent of the queue transport so
// tests can drive it directly.
type Engine struct {
	workflows *registry.WorkflowService
	teams     *registry.TeamService
	records   *registry.WorkflowRecordService
	bus       bus.Bus
	namespace string
	logger    *slog.Logger
	metrics   *Metrics

	mu              sync.Mutex
	startListeners  []StartListener
	finishListeners []FinishListener
}

func NewEngine(workflows *registry.WorkflowService, teams *registry.TeamService, records *registry.WorkflowRecordService, b bus.Bus, namespace string, logger *slog.Logger, metrics *Metrics) *Engine {
	if namespace == "" {
		namespace = resource.DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Engine{
		workflows: workflows,
		teams:     teams,
		records:   records,
		bus:       b,
		namespace: namespace,
		logger:    logger,
		metrics:   metrics,
	}
}

func (e *Engine) AddStartListener(l StartListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startListeners = append(e.startListeners, l)
}

func (e *Engine) AddFinishListener(l FinishListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finishListeners = append(e.finishListeners, l)
}

// HandleMessage is the router queue handler. Drop paths return nil so
// the message acks; only persistence and publish failures propagate,
// which lets the broker redeliver.
func (e *Engine) HandleMessage(ctx context.Context, data []byte) error {
	e.metrics.MessagesConsumed.Inc()

	var msg resource.WorkflowMessage
	if err := resource.Decode(data, &msg); err != nil {
		e.drop("malformed router message", "error", err)
		return nil
	}

	contents, err := msg.ReadContents()
	if err != nil {
		e.drop("invalid router message", "workflow", msg.Workflow, "kind", msg.Kind, "error", err)
		return nil
	}

	switch payload := contents.(type) {
	case resource.InitiateWorkflowPayload:
		return e.handleInitiate(ctx, msg, payload)
	case resource.WorkflowActionReportPayload:
		return e.handleReport(ctx, msg, payload)
	default:
		e.drop("unexpected message kind on router queue", "workflow", msg.Workflow, "kind", msg.Kind)
		return nil
	}
}

func (e *Engine) handleInitiate(ctx context.Context, msg resource.WorkflowMessage, payload resource.InitiateWorkflowPayload) error {
	wf, err := e.workflows.Get(ctx, msg.Workflow, e.namespace)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			e.drop("initiate for unknown workflow", "workflow", msg.Workflow)
			return nil
		}
		return err
	}
	spec := wf.Spec

	record := resource.NewWorkflowRecord(spec, payload.Inputs, payload.Workspace)
	if msg.ID != "" {
		// The record id derives from the message id so a redelivered
		// initiate is idempotent.
		record.ID = msg.ID
	}
	record, err = e.records.CreateRecord(ctx, record, e.namespace)
	if err != nil {
		if errors.Is(err, resource.ErrAlreadyExists) {
			e.drop("record already exists", "workflow", msg.Workflow, "record", msg.ID)
			return nil
		}
		return err
	}

	for _, input := range spec.Inputs {
		if _, ok := payload.Inputs[input.Name]; !ok {
			e.drop("initiate missing declared input", "workflow", msg.Workflow, "record", record.ID, "input", input.Name)
			return nil
		}
	}

	e.notifyStart(resource.WorkflowStartEvent{Workflow: spec.Name, Record: record})

	for name, step := range spec.Steps {
		if !record.StepReady(step) {
			continue
		}
		if err := e.triggerStep(ctx, record, spec, name, step); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleReport(ctx context.Context, msg resource.WorkflowMessage, payload resource.WorkflowActionReportPayload) error {
	record, err := e.records.Get(ctx, msg.Workflow, msg.ID, e.namespace)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			e.drop("report for unknown record", "workflow", msg.Workflow, "record", msg.ID, "step", payload.Step)
			return nil
		}
		return err
	}

	wf, err := e.workflows.Get(ctx, msg.Workflow, e.namespace)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			e.drop("report for deleted workflow", "workflow", msg.Workflow, "record", msg.ID, "step", payload.Step)
			return nil
		}
		return err
	}
	spec := wf.Spec

	step, ok := spec.Steps[payload.Step]
	if !ok {
		e.drop("report for unknown step", "workflow", msg.Workflow, "record", msg.ID, "step", payload.Step)
		return nil
	}

	runStatus := record.RunStatus[payload.Step]
	runStatus.Runs++
	runStatus.Results = append(runStatus.Results, resource.StepResult{Outputs: payload.Outputs, Error: payload.Error})
	record.RunStatus[payload.Step] = runStatus

	if payload.Error != "" {
		// Error keys land only once the retry budget is spent, so the
		// completion test cannot fire while a retry is still due.
		if runStatus.Runs > step.RunConfig.NumRetries {
			for _, mapped := range step.OutputMap {
				record.Errors[mapped] = payload.Error
			}
		}
	} else {
		for name, value := range payload.Outputs {
			if mapped, ok := step.OutputMap[name]; ok {
				record.Outputs[mapped] = value
			}
		}
	}

	// Every payload output lands in context, mapped or not, so
	// downstream steps can consume intermediate values.
	for name, value := range payload.Outputs {
		record.Context[payload.Step+"."+name] = value
	}

	record, err = e.records.Update(ctx, record, e.namespace)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			e.drop("record vanished before update", "workflow", msg.Workflow, "record", msg.ID, "step", payload.Step)
			return nil
		}
		return err
	}

	if record.Complete() {
		e.metrics.WorkflowsFinished.Inc()
		e.notifyFinish(resource.WorkflowFinishEvent{Workflow: spec.Name, Record: record})
		return nil
	}

	return e.fanOut(ctx, record, spec)
}

// fanOut triggers every step whose dependencies are satisfied and that
// either has not run yet or failed with retry budget remaining.
func (e *Engine) fanOut(ctx context.Context, record resource.WorkflowRecord, spec resource.WorkflowSpec) error {
	for name, step := range spec.Steps {
		if !record.StepReady(step) {
			continue
		}
		runStatus := record.RunStatus[name]
		if runStatus.Runs == 0 {
			if err := e.triggerStep(ctx, record, spec, name, step); err != nil {
				return err
			}
			continue
		}
		last, ok := runStatus.LastResult()
		if ok && last.Error != "" && step.RunConfig.NumRetries >= runStatus.Runs {
			e.metrics.RetriesScheduled.Inc()
			if err := e.triggerStep(ctx, record, spec, name, step); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) triggerStep(ctx context.Context, record resource.WorkflowRecord, spec resource.WorkflowSpec, name string, step resource.WorkflowStep) error {
	team, err := e.teams.Get(ctx, spec.Team, e.namespace)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			e.drop("trigger with unknown team", "workflow", spec.Name, "record", record.ID, "step", name, "team", spec.Team)
			return nil
		}
		return err
	}

	inputs := make(map[string]resource.TypedResult, len(step.InputMap))
	for actionInput, path := range step.InputMap {
		inputs[actionInput] = record.Context[path]
	}

	agentInbox, err := inbox.FromRole(e.bus, team.Spec, step.Role, e.namespace)
	if err != nil {
		e.drop("trigger with no agent for role", "workflow", spec.Name, "record", record.ID, "step", name, "role", step.Role)
		return nil
	}

	payload := resource.WorkflowActionTriggerPayload{
		Step:        name,
		Action:      step.Action,
		Inputs:      inputs,
		RoleContext: team.Spec.RoleDescription(step.Role),
	}
	if err := agentInbox.TriggerAction(ctx, spec.Name, record.ID, payload); err != nil {
		return fmt.Errorf("trigger step %s of %s/%s: %w", name, spec.Name, record.ID, err)
	}

	e.metrics.StepsTriggered.Inc()
	e.logger.Debug("triggered step", "workflow", spec.Name, "record", record.ID, "step", name, "role", step.Role)
	return nil
}

func (e *Engine) notifyStart(event resource.WorkflowStartEvent) {
	e.mu.Lock()
	listeners := make([]StartListener, len(e.startListeners))
	copy(listeners, e.startListeners)
	e.mu.Unlock()

	for _, l := range listeners {
		go func(l StartListener) {
			defer e.recoverListener("start", event.Workflow, event.Record.ID)
			l(event)
		}(l)
	}
}

func (e *Engine) notifyFinish(event resource.WorkflowFinishEvent) {
	e.mu.Lock()
	listeners := make([]FinishListener, len(e.finishListeners))
	copy(listeners, e.finishListeners)
	e.mu.Unlock()

	for _, l := range listeners {
		go func(l FinishListener) {
			defer e.recoverListener("finish", event.Workflow, event.Record.ID)
			l(event)
		}(l)
	}
}

func (e *Engine) recoverListener(kind, workflow, record string) {
	if r := recover(); r != nil {
		e.logger.Warn("workflow listener panicked", "kind", kind, "workflow", workflow, "record", record, "panic", r)
	}
}

func (e *Engine) drop(msg string, args ...any) {
	e.metrics.MessagesDropped.Inc()
	e.logger.Warn(msg, args...)
}
