package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/spf13/afero"

	"github.com/seedwise/kindred/internal/workitem"
)

// DefaultPolicyPackage is the Rego package the engine queries.
const DefaultPolicyPackage = "kindred.candidates"

// Engine wraps OPA for candidate-admission evaluation. It loads .rego files
// once and evaluates their deny and warn rules per seed/candidate pair.
type Engine struct {
	policies      []*PolicyFile
	policyPackage string
	audit         *AuditStore
	requestID     string
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// PoliciesDir holds the .rego files. Empty with a ProjectDir set
	// defaults to {ProjectDir}/.kindred/policies.
	PoliciesDir string

	// ProjectDir anchors the default policies path.
	ProjectDir string

	// PolicyPackage overrides the queried Rego package.
	PolicyPackage string

	// Fs defaults to the OS filesystem.
	Fs afero.Fs

	// Audit, when set, records every decision. Save failures are ignored;
	// admission never blocks on the audit trail.
	Audit *AuditStore
}

// NewEngine loads policies per cfg. A missing policies directory yields an
// engine with zero policies, which allows everything.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.PoliciesDir == "" && cfg.ProjectDir != "" {
		cfg.PoliciesDir = GetPoliciesPath(cfg.ProjectDir)
	}
	if cfg.PolicyPackage == "" {
		cfg.PolicyPackage = DefaultPolicyPackage
	}

	policies, err := NewLoader(cfg.Fs, cfg.PoliciesDir).LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}

	return &Engine{
		policies:      policies,
		policyPackage: cfg.PolicyPackage,
		audit:         cfg.Audit,
	}, nil
}

// NewEngineWithPolicies builds an engine from in-memory policies. Tests and
// ad hoc validation use it.
func NewEngineWithPolicies(policies []*PolicyFile) *Engine {
	return &Engine{
		policies:      policies,
		policyPackage: DefaultPolicyPackage,
	}
}

// SetRequestID tags subsequent audit records with the pipeline request id.
func (e *Engine) SetRequestID(id string) {
	e.requestID = id
}

// PolicyCount reports how many policies are loaded.
func (e *Engine) PolicyCount() int {
	return len(e.policies)
}

// PolicyNames lists the loaded policy names.
func (e *Engine) PolicyNames() []string {
	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name
	}
	return names
}

// Evaluate runs the loaded policies against input. Strings produced by deny
// rules become violations; warn rules become warnings that never block.
func (e *Engine) Evaluate(ctx context.Context, input any) (*PolicyDecision, error) {
	decision := &PolicyDecision{
		DecisionID:  uuid.New().String(),
		PolicyPath:  e.policyPackage,
		Result:      PolicyResultAllow,
		Input:       input,
		RequestID:   e.requestID,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(e.policies) == 0 {
		return decision, nil
	}

	modules := make([]func(*rego.Rego), len(e.policies))
	for i, p := range e.policies {
		modules[i] = rego.Module(p.Path, p.Content)
	}

	violations, err := e.querySet(ctx, input, "deny", modules)
	if err != nil {
		return nil, fmt.Errorf("query deny rules: %w", err)
	}
	warnings, err := e.querySet(ctx, input, "warn", modules)
	if err != nil {
		// warn rules are optional
		warnings = nil
	}

	if len(violations) > 0 {
		decision.Result = PolicyResultDeny
		decision.Violations = violations
	}
	decision.Warnings = warnings
	return decision, nil
}

// querySet evaluates a set-generating rule (deny or warn) and returns its
// string members. An undefined rule is not an error.
func (e *Engine) querySet(ctx context.Context, input any, ruleName string, modules []func(*rego.Rego)) ([]string, error) {
	opts := []func(*rego.Rego){
		rego.Query(fmt.Sprintf("data.%s.%s", e.policyPackage, ruleName)),
		rego.Input(input),
	}
	opts = append(opts, modules...)

	rs, err := rego.New(opts...).Eval(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "undefined") {
			return nil, nil
		}
		return nil, err
	}

	var results []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			set, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, item := range set {
				if s, ok := item.(string); ok {
					results = append(results, s)
				}
			}
		}
	}
	return results, nil
}

// Admit evaluates one candidate against the seed. It satisfies the fetcher's
// admission seam: denied candidates are dropped, warnings are surfaced for
// logging, and the decision lands in the audit store when configured.
func (e *Engine) Admit(ctx context.Context, seed, candidate workitem.WorkItem) (bool, []string, error) {
	if e == nil || len(e.policies) == 0 {
		return true, nil, nil
	}

	input := &PolicyInput{
		Seed:      ItemInputFrom(seed),
		Candidate: ItemInputFrom(candidate),
	}
	decision, err := e.Evaluate(ctx, input)
	if err != nil {
		return false, nil, err
	}

	decision.SeedID = seed.ID
	decision.CandidateID = candidate.ID
	if e.audit != nil {
		_ = e.audit.SaveDecision(decision)
	}
	if decision.IsDenied() {
		return false, decision.Violations, nil
	}
	return true, decision.Warnings, nil
}

// AddPolicy registers in-memory Rego source under name.
func (e *Engine) AddPolicy(name, content string) {
	e.policies = append(e.policies, &PolicyFile{
		Name:    name,
		Path:    name + ".rego",
		Content: content,
	})
}

// ClearPolicies drops every loaded policy.
func (e *Engine) ClearPolicies() {
	e.policies = nil
}

// ValidatePolicy checks Rego syntax without loading the policy.
func ValidatePolicy(content string) error {
	_, err := rego.New(
		rego.Query("data"),
		rego.Module("validation.rego", content),
	).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}
