package config

import (
	"context"
	"testing"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]libmpv.Node
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "arithmetic",
			script: "result = 2 + 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if !sr.Output["result"].Equal(libmpv.Int64(4)) {
					t.Errorf("result = %v, want 4", sr.Output["result"].Interface())
				}
			},
		},
		{
			name:   "input variables",
			script: "volume = 100 if platform == \"linux\" else 50\n",
			input:  map[string]libmpv.Node{"platform": libmpv.String("linux")},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if !sr.Output["volume"].Equal(libmpv.Int64(100)) {
					t.Errorf("volume = %v, want 100", sr.Output["volume"].Interface())
				}
			},
		},
		{
			name: "dict keeps insertion order",
			script: `
opts = {}
opts["zeta"] = 1
opts["alpha"] = True
opts["mid"] = "x"
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				want := libmpv.Map(
					libmpv.MapEntry{Key: "zeta", Value: libmpv.Int64(1)},
					libmpv.MapEntry{Key: "alpha", Value: libmpv.Flag(true)},
					libmpv.MapEntry{Key: "mid", Value: libmpv.String("x")},
				)
				if !sr.Output["opts"].Equal(want) {
					t.Errorf("opts = %s", mustMarshal(t, sr.Output["opts"]))
				}
			},
		},
		{
			name: "functions and private globals are dropped",
			script: `
def helper():
    return 1

_scratch = 2
value = helper()
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["helper"]; ok {
					t.Error("function exported")
				}
				if _, ok := sr.Output["_scratch"]; ok {
					t.Error("private global exported")
				}
				if !sr.Output["value"].Equal(libmpv.Int64(1)) {
					t.Errorf("value = %v", sr.Output["value"].Interface())
				}
			},
		},
		{
			name:   "struct",
			script: "s = struct(b = 2, a = 1)\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if got := string(mustMarshal(t, sr.Output["s"])); got != `{"a":1,"b":2}` {
					t.Errorf("s = %s", got)
				}
			},
		},
		{
			name:    "syntax error",
			script:  "x = = 1\n",
			wantErr: true,
		},
		{
			name:    "non-string dict key",
			script:  "d = {1: 2}\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, "test.star", tt.script, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if result == nil || result.Error == "" {
					t.Error("failed result carries no error message")
				}
				return
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)

	script := `
def spin():
    n = 0
    for i in range(1000000000):
        n += i
    return n

total = spin()
`
	start := time.Now()
	_, err := evaluator.Evaluate(context.Background(), "spin.star", script, nil)
	if err == nil {
		t.Fatal("Evaluate() finished an endless script")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestStarlarkDocument(t *testing.T) {
	doc := starlarkDocument(map[string]libmpv.Node{
		"log_level":       libmpv.String("warn"),
		"name":            libmpv.String("a"),
		"window":          libmpv.None(),
		"initial_options": libmpv.Map(),
	})

	if got := string(mustMarshal(t, doc)); got != `{"name":"a","initialOptions":{},"logLevel":"warn"}` {
		t.Errorf("document = %s", got)
	}
}

func mustMarshal(t *testing.T, n libmpv.Node) []byte {
	t.Helper()
	b, err := n.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	return b
}
