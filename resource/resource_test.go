package resource

import (
	"errors"
	"testing"
)

func TestKey(t *testing.T) {
	t.Run("resource key format", func(t *testing.T) {
		got := Key(TypeAgent, "default", "coder")
		want := "/resources/agents/default/coder"
		if got != want {
			t.Errorf("Key() = %q, want %q", got, want)
		}
	})

	t.Run("empty namespace defaults", func(t *testing.T) {
		got := Key(TypeTeam, "", "core")
		want := "/resources/teams/default/core"
		if got != want {
			t.Errorf("Key() = %q, want %q", got, want)
		}
	})

	t.Run("record key format", func(t *testing.T) {
		got := RecordKey("default", "deploy", "abc-123")
		want := "/records/workflows/default/deploy/abc-123"
		if got != want {
			t.Errorf("RecordKey() = %q, want %q", got, want)
		}
	})
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantType  ResourceType
		wantNS    string
		wantName  string
		wantError bool
	}{
		{"agent key", "/resources/agents/default/coder", TypeAgent, "default", "coder", false},
		{"workflow key", "/resources/workflows/prod/deploy", TypeWorkflow, "prod", "deploy", false},
		{"workspace key", "/resources/workspaces/default/issue-7", TypeWorkspace, "default", "issue-7", false},
		{"outside root", "/records/workflows/default/x/y", "", "", "", true},
		{"unknown prefix", "/resources/widgets/default/x", "", "", "", true},
		{"too few segments", "/resources/agents/default", "", "", "", true},
		{"too many segments", "/resources/agents/default/a/b", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, ns, name, err := ParseKey(tt.key)
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error for %q", tt.key)
				}
				if !errors.Is(err, ErrInvalidEvent) {
					t.Errorf("expected ErrInvalidEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if typ != tt.wantType || ns != tt.wantNS || name != tt.wantName {
				t.Errorf("ParseKey(%q) = (%s, %s, %s)", tt.key, typ, ns, name)
			}
		})
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	for _, typ := range []ResourceType{TypeAgent, TypeIdentity, TypeTeam, TypeWorkflow, TypeWorkspace, TypeTask} {
		key := Key(typ, "default", "thing")
		gotType, ns, name, err := ParseKey(key)
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if gotType != typ || ns != "default" || name != "thing" {
			t.Errorf("%s: round trip gave (%s, %s, %s)", typ, gotType, ns, name)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Run("agent resource round trip", func(t *testing.T) {
		res := NewAgentResource(AgentSpec{
			Name:  "coder",
			Image: "roster/agent:1.2",
			Capabilities: AgentCapabilities{
				NetworkAccess:   true,
				MessagingAccess: true,
			},
		})
		data, err := Encode(res)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		var back AgentResource
		if err := Decode(data, &back); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if back.Spec != res.Spec {
			t.Errorf("spec mismatch: %+v != %+v", back.Spec, res.Spec)
		}
		if back.Status.Status != StatusPending {
			t.Errorf("expected pending status, got %q", back.Status.Status)
		}
	})

	t.Run("decode failure wraps ErrDeserialization", func(t *testing.T) {
		var res AgentResource
		err := Decode([]byte("not json"), &res)
		if !errors.Is(err, ErrDeserialization) {
			t.Errorf("expected ErrDeserialization, got %v", err)
		}
	})
}

func TestNewResourceInitialStatus(t *testing.T) {
	agent := NewAgentResource(AgentSpec{Name: "a", Image: "img"})
	if agent.Status.Status != StatusPending || agent.Status.Name != "a" {
		t.Errorf("agent initial status = %+v", agent.Status)
	}

	identity := NewIdentityResource(IdentitySpec{Name: "i"})
	if identity.Status.Status != StatusActive {
		t.Errorf("identity initial status = %+v", identity.Status)
	}

	wf := NewWorkflowResource(WorkflowSpec{Name: "w", Team: "t"})
	if wf.Status.Status != StatusPending {
		t.Errorf("workflow initial status = %+v", wf.Status)
	}
	if wf.APIVersion != APIVersion || wf.Kind != "workflow" {
		t.Errorf("workflow envelope = %s/%s", wf.APIVersion, wf.Kind)
	}
}
