// Package resource defines the entities persisted by the control plane,
// the messages exchanged over the bus, and the events emitted by the
// change feed. All persisted entities carry an api_version, a kind, and
// a free-form metadata map, and are stored as plain JSON documents.
package resource

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIVersion is the wire and storage schema version.
const APIVersion = "v0.1"

// DefaultNamespace scopes resources when no namespace is given.
const DefaultNamespace = "default"

// Key roots in the store.
const (
	ResourceRoot = "/resources"
	RecordRoot   = "/records/workflows"
)

// ResourceType identifies a resource kind on the wire and in event routing.
type ResourceType string

const (
	TypeAgent     ResourceType = "AGENT"
	TypeIdentity  ResourceType = "IDENTITY"
	TypeTeam      ResourceType = "TEAM"
	TypeWorkflow  ResourceType = "WORKFLOW"
	TypeWorkspace ResourceType = "WORKSPACE"
	TypeTask      ResourceType = "TASK"
)

// kindPrefixes maps the key segment under /resources to its type.
var kindPrefixes = map[string]ResourceType{
	"agents":     TypeAgent,
	"identities": TypeIdentity,
	"teams":      TypeTeam,
	"workflows":  TypeWorkflow,
	"workspaces": TypeWorkspace,
	"tasks":      TypeTask,
}

var typePrefixes = func() map[ResourceType]string {
	m := make(map[ResourceType]string, len(kindPrefixes))
	for prefix, t := range kindPrefixes {
		m[t] = prefix
	}
	return m
}()

// KeyPrefix returns the store prefix for a resource type within a namespace,
// e.g. /resources/agents/default.
func KeyPrefix(t ResourceType, namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return fmt.Sprintf("%s/%s/%s", ResourceRoot, typePrefixes[t], namespace)
}

// Key returns the store key for a named resource.
func Key(t ResourceType, namespace, name string) string {
	return KeyPrefix(t, namespace) + "/" + name
}

// RecordKey returns the store key for a workflow execution record.
func RecordKey(namespace, workflow, recordID string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return fmt.Sprintf("%s/%s/%s/%s", RecordRoot, namespace, workflow, recordID)
}

// ParseKey splits a /resources key into its type, namespace and name.
func ParseKey(key string) (ResourceType, string, string, error) {
	rest, ok := strings.CutPrefix(key, ResourceRoot+"/")
	if !ok {
		return "", "", "", fmt.Errorf("%w: key %q outside resource root", ErrInvalidEvent, key)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: key %q has %d segments, want 3", ErrInvalidEvent, key, len(parts))
	}
	t, ok := kindPrefixes[parts[0]]
	if !ok {
		return "", "", "", fmt.Errorf("%w: unknown resource prefix %q", ErrInvalidEvent, parts[0])
	}
	return t, parts[1], parts[2], nil
}

// Encode serializes a resource or message for storage and transport.
// Values are encoded exactly once; Decode is its inverse.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// Decode deserializes data produced by Encode.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return nil
}
