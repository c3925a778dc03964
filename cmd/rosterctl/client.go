package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// resourcePaths maps document kinds onto API collections.
var resourcePaths = map[string]string{
	"agent":     "agents",
	"identity":  "identities",
	"team":      "teams",
	"workflow":  "workflows",
	"workspace": "workspaces",
	"task":      "tasks",
}

// Client talks to the roster REST API.
type Client struct {
	base       string
	namespace  string
	httpClient *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(server, namespace string) *Client {
	return &Client{
		base:       strings.TrimSuffix(server, "/") + "/v0.1",
		namespace:  namespace,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// document is one YAML document in an apply stream.
type document struct {
	Kind string         `yaml:"kind"`
	Spec map[string]any `yaml:"spec"`
}

// ApplyStream decodes a multi-document YAML stream and applies each
// document, creating or updating as needed. It returns how many
// documents were applied.
func (c *Client) ApplyStream(ctx context.Context, r io.Reader, out io.Writer) (int, error) {
	decoder := yaml.NewDecoder(r)
	applied := 0
	for {
		var doc document
		err := decoder.Decode(&doc)
		if err == io.EOF {
			return applied, nil
		}
		if err != nil {
			return applied, fmt.Errorf("parse document %d: %w", applied+1, err)
		}
		if doc.Kind == "" && doc.Spec == nil {
			continue // blank document
		}

		name, action, err := c.Apply(ctx, doc)
		if err != nil {
			return applied, fmt.Errorf("apply document %d: %w", applied+1, err)
		}
		fmt.Fprintf(out, "%s/%s %s\n", doc.Kind, name, action)
		applied++
	}
}

// Apply creates the document's resource, falling back to an update when
// it already exists. It returns the resource name and what happened.
func (c *Client) Apply(ctx context.Context, doc document) (string, string, error) {
	path, ok := resourcePaths[doc.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown kind %q", doc.Kind)
	}
	name, _ := doc.Spec["name"].(string)
	if name == "" {
		return "", "", fmt.Errorf("%s spec has no name", doc.Kind)
	}

	body, err := json.Marshal(doc.Spec)
	if err != nil {
		return "", "", err
	}

	status, _, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", "", err
	}
	switch status {
	case http.StatusCreated:
		return name, "created", nil
	case http.StatusConflict:
		// Fall through to update.
	default:
		return "", "", fmt.Errorf("create %s/%s: unexpected status %d", doc.Kind, name, status)
	}

	status, _, err = c.do(ctx, http.MethodPatch, path+"/"+name, body)
	if err != nil {
		return "", "", err
	}
	if status != http.StatusOK {
		return "", "", fmt.Errorf("update %s/%s: unexpected status %d", doc.Kind, name, status)
	}
	return name, "configured", nil
}

// Get fetches one resource, or the whole collection when name is empty,
// and returns indented JSON.
func (c *Client) Get(ctx context.Context, kind, name string) (string, error) {
	path, ok := resourcePaths[kind]
	if !ok {
		return "", fmt.Errorf("unknown kind %q", kind)
	}
	if name != "" {
		path += "/" + name
	}

	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%s/%s not found", kind, name)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("get %s: unexpected status %d", path, status)
	}
	return indent(body)
}

// Delete removes one resource.
func (c *Client) Delete(ctx context.Context, kind, name string) error {
	path, ok := resourcePaths[kind]
	if !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}

	status, _, err := c.do(ctx, http.MethodDelete, path+"/"+name, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s/%s not found", kind, name)
	default:
		return fmt.Errorf("delete %s/%s: unexpected status %d", kind, name, status)
	}
}

// Initiate starts a workflow run and returns the record id.
func (c *Client) Initiate(ctx context.Context, workflow string, inputs map[string]string, workspace string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"workflow":  workflow,
		"inputs":    inputs,
		"workspace": workspace,
	})
	if err != nil {
		return "", err
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "commands/initiate-workflow", body)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("workflow %s not found", workflow)
	}
	if status != http.StatusAccepted {
		return "", fmt.Errorf("initiate %s: unexpected status %d: %s", workflow, status, respBody)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Records fetches the records of a workflow, or one record by id.
func (c *Client) Records(ctx context.Context, workflow, id string) (string, error) {
	path := "workflow-records?workflow=" + workflow
	if id != "" {
		path = "workflow-records/" + workflow + "/" + id
	}

	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("record %s of %s not found", id, workflow)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("get records: unexpected status %d", status)
	}
	return indent(body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	url := c.base + "/" + path
	if c.namespace != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		url += sep + "namespace=" + c.namespace
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request %s: %w (is roster running?)", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func indent(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body), nil
	}
	return buf.String(), nil
}
