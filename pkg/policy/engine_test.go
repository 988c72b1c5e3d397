package policy

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func commandArgs(name string, args ...string) []libmpv.Node {
	nodes := []libmpv.Node{libmpv.String(name)}
	for _, a := range args {
		nodes = append(nodes, libmpv.String(a))
	}
	return nodes
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"file-writes", "protocols", "script-loading", "subprocess"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("policy %d: expected %s, got %s", i, name, policies[i].Name)
		}
		if !policies[i].Builtin {
			t.Errorf("policy %s should be built-in", name)
		}
	}
}

func TestEvaluateCommand_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name          string
		command       string
		args          []interface{}
		expectAllowed bool
		expectWarning bool
		expectPolicy  string
	}{
		{name: "loadfile local path", command: "loadfile", args: []interface{}{"video.mp4"}, expectAllowed: true},
		{name: "loadfile https", command: "loadfile", args: []interface{}{"https://example.com/a.mkv", "replace"}, expectAllowed: true},
		{name: "loadfile fd protocol", command: "loadfile", args: []interface{}{"fd://3"}, expectPolicy: "protocols"},
		{name: "loadlist lavf protocol", command: "loadlist", args: []interface{}{"LAVF://concat:a|b"}, expectPolicy: "protocols"},
		{name: "run", command: "run", args: []interface{}{"sh", "-c", "true"}, expectPolicy: "subprocess"},
		{name: "subprocess", command: "subprocess", args: []interface{}{}, expectPolicy: "subprocess"},
		{name: "load-script", command: "load-script", args: []interface{}{"/tmp/x.lua"}, expectPolicy: "script-loading"},
		{name: "set scripts", command: "set", args: []interface{}{"scripts", "/tmp/x.lua"}, expectPolicy: "script-loading"},
		{name: "set pause", command: "set", args: []interface{}{"pause", "yes"}, expectAllowed: true},
		{name: "cycle pause", command: "cycle", args: []interface{}{"pause"}, expectAllowed: true},
		{name: "screenshot-to-file", command: "screenshot-to-file", args: []interface{}{"/tmp/a.png"}, expectAllowed: true, expectWarning: true},
		{name: "numeric argument", command: "seek", args: []interface{}{int64(10), "relative"}, expectAllowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := eng.EvaluateCommand(context.Background(), CommandInput{
				Session: "main",
				Command: tt.command,
				Args:    tt.args,
			})
			if err != nil {
				t.Fatalf("EvaluateCommand failed: %v", err)
			}

			if decision.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v (violations: %+v)", tt.expectAllowed, decision.Allowed, decision.Violations)
			}
			if len(decision.Errors) > 0 {
				t.Errorf("Unexpected evaluation errors: %v", decision.Errors)
			}
			if tt.expectWarning && len(decision.Warnings) == 0 {
				t.Error("Expected a warning")
			}
			if tt.expectPolicy != "" {
				if len(decision.Violations) == 0 {
					t.Fatal("Expected a violation")
				}
				v := decision.Violations[0]
				if v.Policy != tt.expectPolicy {
					t.Errorf("Expected policy %s, got %s", tt.expectPolicy, v.Policy)
				}
				if v.Session != "main" || v.Command != tt.command {
					t.Errorf("Violation lost its context: %+v", v)
				}
				if v.Message == "" {
					t.Error("Violation has no message")
				}
			}
			if len(decision.EvaluatedPolicies) != 4 {
				t.Errorf("Expected 4 evaluated policies, got %d", len(decision.EvaluatedPolicies))
			}
		})
	}
}

func TestEvaluateCommand_RequiresName(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.EvaluateCommand(context.Background(), CommandInput{Session: "main"}); err == nil {
		t.Error("Expected error for an empty command name")
	}
}

func TestCheckCommand(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	t.Run("allowed", func(t *testing.T) {
		if err := eng.CheckCommand(ctx, "main", commandArgs("loadfile", "video.mp4")); err != nil {
			t.Errorf("Expected loadfile to be allowed, got %v", err)
		}
	})

	t.Run("denied", func(t *testing.T) {
		err := eng.CheckCommand(ctx, "main", commandArgs("run", "sh"))
		if !libmpv.IsDenied(err) {
			t.Fatalf("Expected a denied error, got %v", err)
		}
		var mpvErr *libmpv.Error
		if !errors.As(err, &mpvErr) {
			t.Fatalf("Expected *libmpv.Error, got %T", err)
		}
		if mpvErr.Name != "run" || mpvErr.Session != "main" || mpvErr.Op != libmpv.OpCommand {
			t.Errorf("Unexpected error fields: %+v", mpvErr)
		}
	})

	t.Run("empty and malformed argument lists pass through", func(t *testing.T) {
		if err := eng.CheckCommand(ctx, "main", nil); err != nil {
			t.Errorf("Expected nil for empty args, got %v", err)
		}
		if err := eng.CheckCommand(ctx, "main", []libmpv.Node{libmpv.Int64(1)}); err != nil {
			t.Errorf("Expected nil for a non-string command name, got %v", err)
		}
	})

	t.Run("node arguments are converted", func(t *testing.T) {
		args := []libmpv.Node{libmpv.String("loadfile"), libmpv.String("fd://0"), libmpv.Map(libmpv.MapEntry{Key: "start", Value: libmpv.Double(1.5)})}
		if err := eng.CheckCommand(ctx, "main", args); !libmpv.IsDenied(err) {
			t.Errorf("Expected fd protocol to be denied, got %v", err)
		}
	})
}

func TestSetData(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.CheckCommand(ctx, "main", commandArgs("loadfile", "https://example.com/a.mkv")); err != nil {
		t.Fatalf("Expected https to be allowed by default, got %v", err)
	}

	if err := eng.SetData(ctx, "/settings/denied_protocols", []interface{}{"https"}); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}

	if err := eng.CheckCommand(ctx, "main", commandArgs("loadfile", "https://example.com/a.mkv")); !libmpv.IsDenied(err) {
		t.Errorf("Expected https to be denied, got %v", err)
	}
	if err := eng.CheckCommand(ctx, "main", commandArgs("loadfile", "fd://3")); err != nil {
		t.Errorf("Expected fd to be allowed after replacing the list, got %v", err)
	}

	if err := eng.SetData(ctx, "not a path", 1); err == nil {
		t.Error("Expected error for an invalid path")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.DisablePolicy("subprocess"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	if err := eng.CheckCommand(ctx, "main", commandArgs("run", "true")); err != nil {
		t.Errorf("Expected run to be allowed with the policy disabled, got %v", err)
	}

	p, err := eng.GetPolicy("subprocess")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Enabled {
		t.Error("Expected policy to be disabled")
	}

	if err := eng.EnablePolicy("subprocess"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	if err := eng.CheckCommand(ctx, "main", commandArgs("run", "true")); !libmpv.IsDenied(err) {
		t.Errorf("Expected run to be denied again, got %v", err)
	}

	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
	if _, err := eng.GetPolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestLoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "no-quit.rego"), quitPolicy)

	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	decision, err := eng.EvaluateCommand(ctx, CommandInput{Session: "main", Command: "quit"})
	if err != nil {
		t.Fatalf("EvaluateCommand failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("Expected quit to be denied")
	}
	v := decision.Violations[0]
	if v.Policy != "no-quit" || v.Severity != SeverityCritical || v.Message != "quit is reserved for the host" {
		t.Errorf("Unexpected violation %+v", v)
	}
	if decision.Reason() != "quit is reserved for the host" {
		t.Errorf("Unexpected reason %q", decision.Reason())
	}
}

func TestLoadPolicies_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)

	file := filepath.Join(t.TempDir(), "broken.rego")
	writeFile(t, file, "package broken\n\ndeny contains if {\n")

	if err := eng.LoadPolicies(context.Background(), []string{file}); err == nil {
		t.Fatal("Expected compile error")
	}
	if len(eng.ListPolicies()) != 4 {
		t.Error("A failed load must not change the policy set")
	}
}

func TestReloadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	file := filepath.Join(t.TempDir(), "custom.rego")
	writeFile(t, file, quitPolicy)
	if err := eng.LoadPolicies(ctx, []string{file}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	if err := eng.DisablePolicy("file-writes"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}

	writeFile(t, file, `package custom.stop

import rego.v1

deny contains "stop is reserved" if {
	input.command == "stop"
}
`)
	if err := eng.ReloadPolicies(ctx); err != nil {
		t.Fatalf("ReloadPolicies failed: %v", err)
	}

	if err := eng.CheckCommand(ctx, "main", commandArgs("quit")); err != nil {
		t.Errorf("Expected quit to be allowed after reload, got %v", err)
	}
	if err := eng.CheckCommand(ctx, "main", commandArgs("stop")); !libmpv.IsDenied(err) {
		t.Errorf("Expected stop to be denied after reload, got %v", err)
	}

	p, err := eng.GetPolicy("file-writes")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Enabled {
		t.Error("Reload should keep built-in enablement")
	}
}

func TestWatchReloadsPolicies(t *testing.T) {
	eng := newTestEngine(t)
	eng.loader.SetReloadDelay(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Watch(ctx); err == nil {
		t.Fatal("Expected error when no paths are loaded")
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "no-quit.rego"), quitPolicy)
	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	if err := eng.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, filepath.Join(dir, "no-stop.rego"), `package custom.stop

import rego.v1

deny contains "stop is reserved" if {
	input.command == "stop"
}
`)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if libmpv.IsDenied(eng.CheckCommand(ctx, "main", commandArgs("stop"))) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the policy reload")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := eng.CheckCommand(ctx, "main", commandArgs("quit")); !libmpv.IsDenied(err) {
		t.Errorf("Existing policies should survive the reload, got %v", err)
	}
}

func TestCreateViolation(t *testing.T) {
	p := &Policy{Name: "custom", Severity: SeverityWarning}
	input := &CommandInput{Session: "main", Command: "stop"}

	tests := []struct {
		name     string
		result   interface{}
		message  string
		severity Severity
	}{
		{name: "string", result: "nope", message: "nope", severity: SeverityWarning},
		{name: "object", result: map[string]interface{}{"message": "blocked", "severity": "critical"}, message: "blocked", severity: SeverityCritical},
		{name: "object without message", result: map[string]interface{}{}, message: "command stop denied by policy custom", severity: SeverityWarning},
		{name: "other", result: true, message: "true", severity: SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := createViolation(p, tt.result, input)
			if v.Message != tt.message || v.Severity != tt.severity {
				t.Errorf("got %q/%s, want %q/%s", v.Message, v.Severity, tt.message, tt.severity)
			}
		})
	}
}
