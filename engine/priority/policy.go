package priority

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// Policy selects prioritized risks worth alerting on. Each rule is a CEL
// expression over severity, event_type, location, confidence,
// priority_score and priority_rank; a risk matches if any rule is true.
type Policy struct {
	rules  []policyRule
	logger *slog.Logger
}

type policyRule struct {
	expr string
	prg  cel.Program
}

// NewPolicy compiles rules. A rule that fails to compile, or does not
// evaluate to a bool, is a ConfigurationError.
func NewPolicy(rules []string, logger *slog.Logger) (*Policy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env, err := cel.NewEnv(
		cel.Variable("severity", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("priority_score", cel.DoubleType),
		cel.Variable("priority_rank", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("priority: cel env: %w", err)
	}

	p := &Policy{logger: logger}
	for i, expr := range rules {
		field := fmt.Sprintf("priority.alert_rules[%d]", i)
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, domain.NewConfigurationError(field, "%v", issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, domain.NewConfigurationError(field, "must evaluate to bool, got %s", ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, domain.NewConfigurationError(field, "%v", err)
		}
		p.rules = append(p.rules, policyRule{expr: expr, prg: prg})
	}
	return p, nil
}

// Len returns the number of compiled rules.
func (p *Policy) Len() int { return len(p.rules) }

// Match reports whether any rule accepts r. Evaluation errors are logged and
// treated as no match.
func (p *Policy) Match(r domain.PrioritizedRisk) bool {
	vars := map[string]any{
		"severity":       string(r.RiskEvent.Severity),
		"event_type":     r.RiskEvent.EventType,
		"location":       r.RiskEvent.Location,
		"confidence":     r.RiskEvent.Confidence,
		"priority_score": r.PriorityScore,
		"priority_rank":  int64(r.PriorityRank),
	}
	for _, rule := range p.rules {
		out, _, err := rule.prg.Eval(vars)
		if err != nil {
			p.logger.Warn("alert rule evaluation failed", "rule", rule.expr, "event_id", r.RiskEvent.ID, "error", err)
			continue
		}
		if ok, isBool := out.Value().(bool); isBool && ok {
			return true
		}
	}
	return false
}

// Select returns the risks that match, in input order.
func (p *Policy) Select(risks []domain.PrioritizedRisk) []domain.PrioritizedRisk {
	var out []domain.PrioritizedRisk
	for _, r := range risks {
		if p.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
