package resource

import "fmt"

// ConversationMessage is one turn of an agent chat.
type ConversationMessage struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// ChatPromptAgentArgs is the body of the agent-chat command.
type ChatPromptAgentArgs struct {
	History []ConversationMessage `json:"history,omitempty"`
	Message string                `json:"message"`
	Team    string                `json:"team,omitempty"`
}

func (a ChatPromptAgentArgs) Validate() error {
	if a.Message == "" {
		return fmt.Errorf("%w: chat message is required", ErrInvalidResource)
	}
	return nil
}

// InitiateWorkflowArgs is the body of the initiate-workflow command.
type InitiateWorkflowArgs struct {
	Workflow  string            `json:"workflow"`
	Inputs    map[string]string `json:"inputs"`
	Workspace string            `json:"workspace,omitempty"`
}

func (a InitiateWorkflowArgs) Validate() error {
	if a.Workflow == "" {
		return fmt.Errorf("%w: workflow name is required", ErrInvalidResource)
	}
	return nil
}
