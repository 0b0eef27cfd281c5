package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/fraudops/kestrel/internal/domain"
)

// compiledCustomRule holds a pre-compiled CEL program for an
// operator-defined rule. Custom rules are pure functions of the
// transaction; they have no history access.
type compiledCustomRule struct {
	name    string
	reason  string
	program cel.Program
}

// newCustomRuleEnv creates the CEL environment exposing transaction
// fields to custom rule expressions.
func newCustomRuleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("mcc", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("card_type", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("city", cel.StringType),
		cel.Variable("hour", cel.IntType),
	)
}

// compileCustomRules compiles every enabled custom rule. Expressions
// must evaluate to bool.
func compileCustomRules(configs []domain.CustomRuleConfig) ([]*compiledCustomRule, error) {
	if len(configs) == 0 {
		return nil, nil
	}

	env, err := newCustomRuleEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	var compiled []*compiledCustomRule
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if cfg.Name == "" || cfg.Expression == "" {
			return nil, fmt.Errorf("custom rule requires name and expression")
		}

		ast, issues := env.Compile(cfg.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile custom rule %s: %w", cfg.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("custom rule %s: expression must return bool, got %s",
				cfg.Name, ast.OutputType())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for custom rule %s: %w", cfg.Name, err)
		}

		reason := cfg.Reason
		if reason == "" {
			reason = fmt.Sprintf("Custom rule %s matched", cfg.Name)
		}

		compiled = append(compiled, &compiledCustomRule{
			name:    cfg.Name,
			reason:  reason,
			program: program,
		})
	}

	return compiled, nil
}

// eval runs the compiled expression against a transaction.
func (r *compiledCustomRule) eval(tx *domain.Transaction) (bool, error) {
	activation := map[string]any{
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"merchant":    tx.Merchant,
		"mcc":         tx.MCCCode,
		"customer_id": tx.CustomerID,
		"device_id":   tx.DeviceID,
		"card_type":   tx.CardType,
		"country":     tx.Country,
		"city":        tx.City,
		"hour":        int64(tx.Timestamp.Hour()),
	}

	out, _, err := r.program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return bool(b), nil
}
