package resource

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageKind discriminates the payload of a WorkflowMessage.
type MessageKind string

const (
	KindInitiateWorkflow MessageKind = "initiate_workflow"
	KindReportAction     MessageKind = "report_action"
	KindTriggerAction    MessageKind = "trigger_action"
)

// InitiateWorkflowPayload starts a new execution of a workflow.
type InitiateWorkflowPayload struct {
	Inputs    map[string]string `json:"inputs"`
	Workspace string            `json:"workspace,omitempty"`
}

// Validate accepts any initiate, inputs or not. The router checks the
// payload against the workflow's declared inputs after the record
// exists, so even an empty initiate leaves an inert record behind.
func (p InitiateWorkflowPayload) Validate() error {
	return nil
}

// WorkflowActionReportPayload reports the outcome of one step run.
type WorkflowActionReportPayload struct {
	Step    string                 `json:"step"`
	Action  string                 `json:"action"`
	Outputs map[string]TypedResult `json:"outputs,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func (p WorkflowActionReportPayload) Validate() error {
	if p.Step == "" {
		return fmt.Errorf("%w: report payload names no step", ErrInvalidEvent)
	}
	return nil
}

// WorkflowActionTriggerPayload asks an agent to run one step action.
// Inputs carry resolved context values; RoleContext describes the role
// the agent plays on the team.
type WorkflowActionTriggerPayload struct {
	Step        string                 `json:"step"`
	Action      string                 `json:"action"`
	Inputs      map[string]TypedResult `json:"inputs"`
	RoleContext string                 `json:"role_context,omitempty"`
}

func (p WorkflowActionTriggerPayload) Validate() error {
	if p.Step == "" || p.Action == "" {
		return fmt.Errorf("%w: trigger payload needs step and action", ErrInvalidEvent)
	}
	return nil
}

// WorkflowMessage is the envelope on the router and agent queues. Kind
// selects the payload type carried in Data.
type WorkflowMessage struct {
	ID       string          `json:"id"`
	Workflow string          `json:"workflow"`
	Kind     MessageKind     `json:"kind"`
	Data     json.RawMessage `json:"data"`
}

func newWorkflowMessage(id, workflow string, kind MessageKind, payload any) (WorkflowMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return WorkflowMessage{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return WorkflowMessage{ID: id, Workflow: workflow, Kind: kind, Data: data}, nil
}

// NewInitiateWorkflowMessage builds an initiate message with a fresh id.
func NewInitiateWorkflowMessage(workflow string, payload InitiateWorkflowPayload) (WorkflowMessage, error) {
	return newWorkflowMessage("", workflow, KindInitiateWorkflow, payload)
}

// NewReportActionMessage builds a report message addressed by record id.
func NewReportActionMessage(workflow, recordID string, payload WorkflowActionReportPayload) (WorkflowMessage, error) {
	return newWorkflowMessage(recordID, workflow, KindReportAction, payload)
}

// NewTriggerActionMessage builds a trigger message addressed by record id.
func NewTriggerActionMessage(workflow, recordID string, payload WorkflowActionTriggerPayload) (WorkflowMessage, error) {
	return newWorkflowMessage(recordID, workflow, KindTriggerAction, payload)
}

// ReadContents decodes Data according to Kind. Unknown kinds and
// payloads that fail validation return ErrInvalidEvent.
func (m WorkflowMessage) ReadContents() (any, error) {
	switch m.Kind {
	case KindInitiateWorkflow:
		var p InitiateWorkflowPayload
		return decodePayload(m.Data, &p)
	case KindReportAction:
		var p WorkflowActionReportPayload
		return decodePayload(m.Data, &p)
	case KindTriggerAction:
		var p WorkflowActionTriggerPayload
		return decodePayload(m.Data, &p)
	default:
		return nil, fmt.Errorf("%w: unknown workflow message kind %q", ErrInvalidEvent, m.Kind)
	}
}

type validator interface{ Validate() error }

func decodePayload[P validator](data []byte, p *P) (P, error) {
	if err := json.Unmarshal(data, p); err != nil {
		return *p, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := (*p).Validate(); err != nil {
		return *p, err
	}
	return *p, nil
}

// ToolSender identifies the resource a tool message originates from.
type ToolSender struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// Tool message kinds.
const (
	KindToolInvocation = "tool_invocation"
	KindToolResponse   = "tool_response"
)

// ToolMessage carries a tool invocation or its response between agents
// and tool providers.
type ToolMessage struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"`
	Kind   string          `json:"kind"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Sender ToolSender      `json:"sender"`
}

// Workspace message kinds.
const (
	KindWorkflowCodeReport = "workflow_code_report"
)

// CodeOutput is one file produced by a workflow step.
type CodeOutput struct {
	Kind     string `json:"kind"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// WorkflowCodeReportPayload collects the code outputs of a finished
// workflow record for the workspace integration.
type WorkflowCodeReportPayload struct {
	WorkflowName   string       `json:"workflow_name"`
	WorkflowRecord string       `json:"workflow_record"`
	CodeOutputs    []CodeOutput `json:"code_outputs"`
}

// WorkspaceMessage is the envelope on the workspace queue.
type WorkspaceMessage struct {
	Workspace string          `json:"workspace"`
	Namespace string          `json:"namespace"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
}
