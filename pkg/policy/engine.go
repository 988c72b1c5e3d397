package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/rs/zerolog"
)

// Engine evaluates Rego policies against player commands. It satisfies
// player.CommandGate through CheckCommand.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   zerolog.Logger
	loader   *Loader
	paths    []string
}

type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	store := inmem.NewFromObject(map[string]interface{}{
		"settings": map[string]interface{}{
			"denied_protocols": stringsToValues(DefaultDeniedProtocols),
		},
	})

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    store,
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	e.loader = NewLoader(logger)

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// CheckCommand evaluates args, a command name followed by its arguments,
// and returns a denied error when a blocking policy matches. An empty or
// malformed argument list is left for the player to reject.
func (e *Engine) CheckCommand(ctx context.Context, session string, args []libmpv.Node) error {
	if len(args) == 0 {
		return nil
	}
	name, ok := args[0].Str()
	if !ok {
		return nil
	}

	input := CommandInput{
		Session: session,
		Command: name,
		Args:    make([]interface{}, 0, len(args)-1),
	}
	for _, arg := range args[1:] {
		input.Args = append(input.Args, arg.Interface())
	}

	decision, err := e.EvaluateCommand(ctx, input)
	if err != nil {
		return err
	}
	if decision.Allowed {
		for i := range decision.Warnings {
			e.logger.Warn().
				Str("session", session).
				Str("command", name).
				Str("policy", decision.Warnings[i].Policy).
				Msg(decision.Warnings[i].Message)
		}
		return nil
	}

	return libmpv.NewError(libmpv.KindDenied, decision.Reason()).
		WithOp(libmpv.OpCommand).
		WithName(name).
		WithSession(session)
}

// EvaluateCommand evaluates every enabled policy against input.
func (e *Engine) EvaluateCommand(ctx context.Context, input CommandInput) (*Decision, error) {
	if input.Command == "" {
		return nil, errors.New("command name is required")
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now()
	}
	if input.Args == nil {
		input.Args = []interface{}{}
	}

	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	decision := &Decision{
		Allowed:           true,
		EvaluatedPolicies: make([]string, 0, len(e.policies)),
	}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		decision.EvaluatedPolicies = append(decision.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, &input)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("command", input.Command).
				Msg("Policy evaluation failed")
			decision.Errors = append(decision.Errors, fmt.Sprintf("Policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		for i := range violations {
			if violations[i].Severity.Blocking() {
				decision.Allowed = false
				decision.Violations = append(decision.Violations, violations[i])
			} else {
				decision.Warnings = append(decision.Warnings, violations[i])
			}
		}
	}

	decision.EvaluatedAt = time.Now()
	decision.Duration = time.Since(startTime)

	e.logger.Debug().
		Str("session", input.Session).
		Str("command", input.Command).
		Bool("allowed", decision.Allowed).
		Int("violations", len(decision.Violations)).
		Dur("duration", decision.Duration).
		Msg("Command policy evaluation completed")

	return decision, nil
}

// LoadPolicies loads policy files or directories and remembers the paths
// for ReloadPolicies and Watch. A user policy with a built-in's name
// replaces it.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	compiled := make([]*compiledPolicy, 0, len(policies))
	for i := range policies {
		cp, err := e.compile(ctx, &policies[i])
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cp := range compiled {
		if existing, ok := e.policies[cp.policy.Name]; ok && existing.policy.Builtin {
			e.logger.Info().Str("policy", cp.policy.Name).Msg("Built-in policy overridden")
		}
		e.policies[cp.policy.Name] = cp
	}
	for _, p := range paths {
		if !slices.Contains(e.paths, p) {
			e.paths = append(e.paths, p)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// Watch reloads the loaded policy paths whenever a file under them
// changes. Watching stops when ctx is done or Close is called.
func (e *Engine) Watch(ctx context.Context) error {
	e.mu.RLock()
	paths := append([]string(nil), e.paths...)
	e.mu.RUnlock()

	if len(paths) == 0 {
		return errors.New("no policy paths loaded")
	}

	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.replaceUserPolicies(ctx, policies)
	})
}

// Close stops watching policy files.
func (e *Engine) Close() error {
	return e.loader.StopWatching()
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *CommandInput) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, input))
		}
	}

	return violations, nil
}

// createViolation creates a Violation from a deny entry.
func createViolation(policy *Policy, result interface{}, input *CommandInput) Violation {
	violation := Violation{
		Policy:     policy.Name,
		Session:    input.Session,
		Command:    input.Command,
		Severity:   policy.Severity,
		DetectedAt: time.Now(),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	if violation.Message == "" {
		violation.Message = fmt.Sprintf("command %s denied by policy %s", input.Command, policy.Name)
	}

	return violation
}

// compile parses a policy and prepares its deny query.
func (e *Engine) compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return nil, errors.New("policy is empty")
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Msg("Policy compiled successfully")

	return &compiledPolicy{policy: policy, query: query}, nil
}

// loadBuiltinPolicies compiles the built-in policies into the engine.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		cp, err := e.compile(ctx, &builtins[i])
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
		e.policies[builtins[i].Name] = cp
	}

	e.logger.Info().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return nil
}

// replaceUserPolicies swaps every non-built-in policy for policies. The
// previous set stays active when any policy fails to compile.
func (e *Engine) replaceUserPolicies(ctx context.Context, policies []Policy) error {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		cp, err := e.compile(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled[policies[i].Name] = cp
	}

	builtins := make(map[string]*compiledPolicy)
	for _, b := range GetBuiltinPolicies() {
		b := b
		cp, err := e.compile(ctx, &b)
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", b.Name, err)
		}
		builtins[b.Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledPolicy, len(builtins)+len(compiled))
	for name, cp := range builtins {
		if old, ok := e.policies[name]; ok && old.policy.Builtin {
			cp.policy.Enabled = old.policy.Enabled
		}
		next[name] = cp
	}
	for name, cp := range compiled {
		next[name] = cp
	}
	e.policies = next

	return nil
}

// ReloadPolicies recompiles the built-in policies and every loaded path.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.RLock()
	paths := append([]string(nil), e.paths...)
	e.mu.RUnlock()

	e.loader.ClearCache()

	var policies []Policy
	if len(paths) > 0 {
		var err error
		policies, err = e.loader.LoadFromPaths(ctx, paths)
		if err != nil {
			return fmt.Errorf("failed to reload policies: %w", err)
		}
	}

	return e.replaceUserPolicies(ctx, policies)
}

// SetData writes value at a slash separated path of the data document,
// for example "/settings/denied_protocols".
func (e *Engine) SetData(ctx context.Context, path string, value interface{}) error {
	p, ok := storage.ParsePath(path)
	if !ok {
		return fmt.Errorf("invalid data path: %s", path)
	}
	if err := storage.WriteOne(ctx, e.store, storage.AddOp, p, value); err != nil {
		return fmt.Errorf("failed to write data %s: %w", path, err)
	}
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	p := *cp.policy
	return &p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}

// sortedNames must be called with e.mu held.
func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringsToValues(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
