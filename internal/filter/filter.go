// Package filter provides CEL-Go based filter expressions over cases.
package filter

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
)

// maxCompiled bounds the compiled program cache.
const maxCompiled = 256

// Engine compiles and evaluates case filter expressions such as
//
//	riskScore > 75 && status == "Pending" && program == "Pension"
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]cel.Program
}

// NewEngine creates a filter engine with the case variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("entityName", cel.StringType),
		cel.Variable("program", cel.StringType),
		cel.Variable("riskScore", cel.IntType),
		cel.Variable("amount", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("dateFlagged", cel.StringType),
		cel.Variable("reasons", cel.ListType(cel.StringType)),
		cel.Variable("highRisk", cel.BoolType),
		// Sub-scores
		cel.Variable("rules", cel.IntType),
		cel.Variable("ml", cel.IntType),
		cel.Variable("network", cel.IntType),
		// Correlation keys from network-link evidence
		cel.Variable("linkIdentifiers", cel.ListType(cel.StringType)),
		cel.Variable("linkTypes", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]cel.Program),
	}, nil
}

// Validate compiles an expression without evaluating it.
func (e *Engine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Apply returns the cases the expression selects, in input order.
// A case whose evaluation fails at runtime is not selected.
func (e *Engine) Apply(expr string, cases []domain.Case) ([]domain.Case, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Case, 0)
	for _, c := range cases {
		val, _, err := prg.Eval(activation(c))
		if err != nil {
			slog.Debug("filter evaluation error", "case_id", c.ID, "error", err)
			continue
		}
		if b, ok := val.(types.Bool); ok && bool(b) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Matches reports whether a single case satisfies the expression.
func (e *Engine) Matches(expr string, c domain.Case) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	val, _, err := prg.Eval(activation(c))
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}
	b, ok := val.(types.Bool)
	return ok && bool(b), nil
}

// CompiledCount returns the number of cached programs.
func (e *Engine) CompiledCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.compiled[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilter, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", domain.ErrInvalidFilter, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilter, err)
	}

	e.mu.Lock()
	if len(e.compiled) >= maxCompiled {
		e.compiled = make(map[string]cel.Program)
	}
	e.compiled[expr] = prg
	e.mu.Unlock()

	return prg, nil
}

func activation(c domain.Case) map[string]any {
	reasons := c.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	ids := []string{}
	kinds := []string{}
	for _, ev := range c.NetworkLinks() {
		link := ingest.LinkOf(ev)
		ids = append(ids, link.Identifier)
		kinds = append(kinds, link.Type)
	}

	return map[string]any{
		"id":              c.ID,
		"entityName":      c.EntityName,
		"program":         c.Program,
		"riskScore":       int64(c.RiskScore),
		"amount":          c.Amount,
		"status":          string(c.Status),
		"dateFlagged":     c.DateFlagged,
		"reasons":         reasons,
		"highRisk":        c.IsHighRisk(),
		"rules":           int64(c.RiskBreakdown.Rules),
		"ml":              int64(c.RiskBreakdown.ML),
		"network":         int64(c.RiskBreakdown.Network),
		"linkIdentifiers": ids,
		"linkTypes":       kinds,
	}
}
