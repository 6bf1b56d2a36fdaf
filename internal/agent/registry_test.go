package agent

import (
	"context"
	"testing"
)

// stubAgent is a minimal Agent for registry tests.
type stubAgent struct {
	name    string
	aliases []string
	methods []string
}

func (s *stubAgent) Name() string          { return s.name }
func (s *stubAgent) Aliases() []string     { return s.aliases }
func (s *stubAgent) Description() string   { return "stub" }
func (s *stubAgent) DefaultMethod() string { return s.methods[0] }
func (s *stubAgent) Methods() []string     { return s.methods }
func (s *stubAgent) Credentials(method string) (Credentials, error) {
	return Credentials{}, nil
}
func (s *stubAgent) PrepareLaunch(context.Context, []string, Options) (*Launch, *AuthContext, error) {
	return &Launch{Argv: []string{s.name}}, &AuthContext{Agent: s.name, Method: s.methods[0]}, nil
}

func TestRegistry(t *testing.T) {
	Clear()
	defer Clear()

	t.Run("register and get", func(t *testing.T) {
		Register(&stubAgent{name: "claude", aliases: []string{"anthropic"}, methods: []string{"claude"}})

		if got := Get("claude"); got == nil || got.Name() != "claude" {
			t.Fatalf("Get(claude) = %v", got)
		}
		if got := Get("anthropic"); got == nil || got.Name() != "claude" {
			t.Errorf("alias lookup failed: %v", got)
		}
	})

	t.Run("unknown returns nil", func(t *testing.T) {
		if got := Get("emacs"); got != nil {
			t.Errorf("expected nil for unknown agent, got %v", got)
		}
	})

	t.Run("names sorted", func(t *testing.T) {
		Clear()
		Register(&stubAgent{name: "gemini", methods: []string{"oauth"}})
		Register(&stubAgent{name: "claude", methods: []string{"claude"}})
		Register(&stubAgent{name: "codex", methods: []string{"chatgpt"}})

		names := Names()
		want := []string{"claude", "codex", "gemini"}
		if len(names) != len(want) {
			t.Fatalf("expected %d names, got %v", len(want), names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
			}
		}
	})

	t.Run("all sorted by name", func(t *testing.T) {
		all := All()
		if len(all) != 3 || all[0].Name() != "claude" || all[2].Name() != "gemini" {
			t.Errorf("unexpected All() order: %v", all)
		}
	})
}

func TestValidateMethod(t *testing.T) {
	a := &stubAgent{name: "codex", methods: []string{"chatgpt", "api-key"}}

	method, err := ValidateMethod(a, "")
	if err != nil || method != "chatgpt" {
		t.Errorf("empty method should resolve to default, got %q, %v", method, err)
	}

	method, err = ValidateMethod(a, "api-key")
	if err != nil || method != "api-key" {
		t.Errorf("supported method rejected: %q, %v", method, err)
	}

	if _, err := ValidateMethod(a, "carrier-pigeon"); err == nil {
		t.Error("expected error for unsupported method")
	}
}
