// Package githubintegration turns GitHub issues into workflow runs and
// pushes finished workflow code back as pull requests. It owns the
// working clones; the core control plane never touches workspace files.
package githubintegration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/inbox"
	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/resource"
)

// DefaultWorkflow runs when an issue is opened.
const DefaultWorkflow = "ImplementFeature"

// workspaceFileReader is the tool agents use to read files out of the
// working clone.
const workspaceFileReader = "workspace-file-reader"

// Integration wires webhooks, the workspace queue and the git pusher
// together.
type Integration struct {
	workspaces *registry.WorkspaceService
	bus        bus.Bus
	pusher     *GitPusher
	secret     []byte
	workflow   string
	namespace  string
	logger     *slog.Logger
}

func NewIntegration(workspaces *registry.WorkspaceService, b bus.Bus, pusher *GitPusher, secret []byte, workflow, namespace string, logger *slog.Logger) *Integration {
	if workflow == "" {
		workflow = DefaultWorkflow
	}
	if namespace == "" {
		namespace = resource.DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Integration{
		workspaces: workspaces,
		bus:        b,
		pusher:     pusher,
		secret:     secret,
		workflow:   workflow,
		namespace:  namespace,
		logger:     logger,
	}
}

// issuesEvent is the slice of the GitHub issues webhook we act on.
type issuesEvent struct {
	Action string `json:"action"`
	Issue  struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	} `json:"issue"`
	Repository struct {
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
	} `json:"repository"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
}

// HandleWebhook verifies and dispatches one webhook delivery. Only
// issue opened/reopened events start workflows; everything else is
// acknowledged and ignored.
func (i *Integration) HandleWebhook(ctx context.Context, signature, eventType string, body []byte) error {
	if err := i.verifySignature(signature, body); err != nil {
		return err
	}
	if eventType != "issues" {
		i.logger.Debug("ignoring webhook event", "event", eventType)
		return nil
	}

	var event issuesEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", resource.ErrWebhookMalformed, err)
	}
	if event.Action != "opened" && event.Action != "reopened" {
		i.logger.Debug("ignoring issue action", "action", event.Action)
		return nil
	}
	if event.Issue.Number == 0 || event.Repository.FullName == "" {
		return fmt.Errorf("%w: issues event missing number or repository", resource.ErrWebhookMalformed)
	}

	workspaceName := fmt.Sprintf("issue-%d", event.Issue.Number)
	spec := resource.WorkspaceSpec{
		Name: workspaceName,
		Kind: "github",
		GithubInfo: &resource.GithubInfo{
			InstallationID: event.Installation.ID,
			RepositoryName: event.Repository.FullName,
			BranchName:     fmt.Sprintf("roster/issue-%d", event.Issue.Number),
		},
	}
	workspace, err := i.workspaces.UpdateOrCreate(ctx, spec, i.namespace)
	if err != nil {
		return fmt.Errorf("upsert workspace %s: %w", workspaceName, err)
	}

	// The codebase tree gives the first step enough context to plan
	// without tool round trips. Failure degrades to an empty tree.
	tree := ""
	if i.pusher != nil {
		tree, err = i.pusher.ListTree(ctx, workspace)
		if err != nil {
			i.logger.Warn("could not list codebase tree", "workspace", workspaceName, "error", err)
			tree = ""
		}
	}

	description := strings.TrimSpace(event.Issue.Title + "\n\n" + event.Issue.Body)
	msg, err := resource.NewInitiateWorkflowMessage(i.workflow, resource.InitiateWorkflowPayload{
		Inputs: map[string]string{
			"feature_description": description,
			"codebase_tree":       tree,
		},
		Workspace: workspaceName,
	})
	if err != nil {
		return err
	}
	data, err := resource.Encode(msg)
	if err != nil {
		return err
	}
	if err := i.bus.Publish(ctx, bus.WorkflowRouterQueue, data); err != nil {
		return fmt.Errorf("initiate %s for %s: %w", i.workflow, workspaceName, err)
	}

	i.logger.Info("issue accepted", "workspace", workspaceName, "workflow", i.workflow, "record", msg.ID)
	return nil
}

func (i *Integration) verifySignature(signature string, body []byte) error {
	if len(i.secret) == 0 {
		return nil
	}
	digest, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return fmt.Errorf("%w: missing sha256 signature", resource.ErrWebhookMalformed)
	}
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		return fmt.Errorf("%w: signature mismatch", resource.ErrWebhookMalformed)
	}
	return nil
}

// OnWorkflowFinish is attached to the router as a finish listener. It
// forwards the code outputs of workspace-bound records to the workspace
// queue; records without a workspace or without code outputs are left
// alone.
func (i *Integration) OnWorkflowFinish(event resource.WorkflowFinishEvent) {
	if event.Record.Workspace == "" || event.Workflow != i.workflow {
		return
	}

	outputs := collectCodeOutputs(event.Record)
	if len(outputs) == 0 {
		i.logger.Info("finished record has no code outputs", "workflow", event.Workflow, "record", event.Record.ID)
		return
	}

	payload := resource.WorkflowCodeReportPayload{
		WorkflowName:   event.Workflow,
		WorkflowRecord: event.Record.ID,
		CodeOutputs:    outputs,
	}
	data, err := resource.Encode(payload)
	if err != nil {
		i.logger.Error("encode code report", "record", event.Record.ID, "error", err)
		return
	}
	msg := resource.WorkspaceMessage{
		Workspace: event.Record.Workspace,
		Namespace: i.namespace,
		Kind:      resource.KindWorkflowCodeReport,
		Data:      data,
	}
	body, err := resource.Encode(msg)
	if err != nil {
		i.logger.Error("encode workspace message", "record", event.Record.ID, "error", err)
		return
	}
	if err := i.bus.Publish(context.Background(), bus.WorkspaceQueue(i.namespace), body); err != nil {
		i.logger.Error("publish code report", "record", event.Record.ID, "error", err)
	}
}

// collectCodeOutputs pulls code-typed results out of a finished record.
func collectCodeOutputs(record resource.WorkflowRecord) []resource.CodeOutput {
	var outputs []resource.CodeOutput
	for _, result := range record.Outputs {
		if result.Type != "code" {
			continue
		}
		raw, err := json.Marshal(result.Value)
		if err != nil {
			continue
		}
		var out resource.CodeOutput
		if err := json.Unmarshal(raw, &out); err != nil || out.FilePath == "" {
			continue
		}
		outputs = append(outputs, out)
	}
	return outputs
}

// HandleWorkspaceMessage consumes the workspace queue.
func (i *Integration) HandleWorkspaceMessage(ctx context.Context, data []byte) error {
	var msg resource.WorkspaceMessage
	if err := resource.Decode(data, &msg); err != nil {
		i.logger.Warn("malformed workspace message", "error", err)
		return nil
	}

	switch msg.Kind {
	case resource.KindWorkflowCodeReport:
		return i.handleCodeReport(ctx, msg)
	case resource.KindToolInvocation:
		return i.handleToolInvocation(ctx, msg)
	default:
		i.logger.Warn("unexpected workspace message kind", "kind", msg.Kind, "workspace", msg.Workspace)
		return nil
	}
}

func (i *Integration) handleCodeReport(ctx context.Context, msg resource.WorkspaceMessage) error {
	var report resource.WorkflowCodeReportPayload
	if err := resource.Decode(msg.Data, &report); err != nil {
		i.logger.Warn("malformed code report", "workspace", msg.Workspace, "error", err)
		return nil
	}
	workspace, err := i.workspaces.Get(ctx, msg.Workspace, i.namespace)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			i.logger.Warn("code report for unknown workspace", "workspace", msg.Workspace)
			return nil
		}
		return err
	}
	if i.pusher == nil {
		i.logger.Warn("no git pusher configured, dropping code report", "workspace", msg.Workspace)
		return nil
	}

	prURL, err := i.pusher.PushCodeReport(ctx, workspace, report)
	if err != nil {
		return fmt.Errorf("push code report for %s: %w", msg.Workspace, err)
	}
	i.logger.Info("opened pull request", "workspace", msg.Workspace, "record", report.WorkflowRecord, "pr", prURL)
	return nil
}

// fileReadRequest is the workspace-file-reader tool payload.
type fileReadRequest struct {
	Paths []string `json:"paths"`
}

func (i *Integration) handleToolInvocation(ctx context.Context, msg resource.WorkspaceMessage) error {
	var tool resource.ToolMessage
	if err := resource.Decode(msg.Data, &tool); err != nil {
		i.logger.Warn("malformed tool invocation", "workspace", msg.Workspace, "error", err)
		return nil
	}
	if tool.Tool != workspaceFileReader {
		i.logger.Warn("unknown workspace tool", "tool", tool.Tool)
		return nil
	}

	reply := inbox.New(i.bus, tool.Sender.Namespace, tool.Sender.Name)

	var req fileReadRequest
	if err := json.Unmarshal(tool.Data, &req); err != nil {
		return reply.SendToolResponse(ctx, tool.ID, tool.Tool, nil, "malformed file read request")
	}

	if i.pusher == nil {
		return reply.SendToolResponse(ctx, tool.ID, tool.Tool, nil, "no workspace backend configured")
	}
	workspace, err := i.workspaces.Get(ctx, msg.Workspace, i.namespace)
	if err != nil {
		return reply.SendToolResponse(ctx, tool.ID, tool.Tool, nil, fmt.Sprintf("workspace %s not found", msg.Workspace))
	}

	contents, err := i.pusher.ReadFiles(ctx, workspace, req.Paths)
	if err != nil {
		return reply.SendToolResponse(ctx, tool.ID, tool.Tool, nil, err.Error())
	}
	data, err := json.Marshal(contents)
	if err != nil {
		return err
	}
	return reply.SendToolResponse(ctx, tool.ID, tool.Tool, data, "")
}
