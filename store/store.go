// Package store adapts a NATS JetStream key-value bucket to the
// slash-separated key space used by the registry, and exposes a
// prefix watch with previous-value tracking.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrBadKey is returned for keys that cannot be represented in the
// underlying bucket.
var ErrBadKey = errors.New("invalid store key")

// EventType distinguishes writes from deletions on a watch stream.
type EventType string

const (
	EventPut    EventType = "PUT"
	EventDelete EventType = "DELETE"
)

// Entry is one key-value pair returned by a prefix scan.
type Entry struct {
	Key   string
	Value []byte
}

// Event is one observed change on a watched prefix. PrevValue carries
// the value before the change when the watcher has seen one.
type Event struct {
	Type      EventType
	Key       string
	Value     []byte
	PrevValue []byte
}

// Watcher delivers events for a prefix until stopped. The events
// channel closes when the watcher stops or its context ends.
type Watcher interface {
	Events() <-chan Event
	Stop()
}

// Store is the KV surface the registry and watch plane build on.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetPrefix(ctx context.Context, prefix string) ([]Entry, error)
	Delete(ctx context.Context, key string) (bool, error)
	// PutIfAbsent writes only when the key is vacant; at most one
	// concurrent caller succeeds.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	WatchPrefix(ctx context.Context, prefix string) (Watcher, error)
}

// Keys are slash paths like /resources/agents/default/x. NATS KV splits
// wildcard tokens on dots, so the adapter stores them dot-separated.
// Segment names therefore must not contain dots.

func encodeKey(key string) (string, error) {
	trimmed := strings.TrimPrefix(key, "/")
	if trimmed == "" {
		return "", ErrBadKey
	}
	if strings.Contains(trimmed, ".") {
		return "", ErrBadKey
	}
	return strings.ReplaceAll(trimmed, "/", "."), nil
}

func decodeKey(encoded string) string {
	return "/" + strings.ReplaceAll(encoded, ".", "/")
}

// watchPattern maps a key prefix to a KV wildcard subscription.
func watchPattern(prefix string) (string, error) {
	encoded, err := encodeKey(prefix)
	if err != nil {
		return "", err
	}
	return encoded + ".>", nil
}

func hasPrefix(key, prefix string) bool {
	if key == prefix {
		return true
	}
	return strings.HasPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
}
