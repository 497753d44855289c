package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// Rule is a boolean expression that must hold for matching updates.
// An empty Types list matches every update type.
type Rule struct {
	Name       string
	Types      []protocol.UpdateType
	Expression string
}

func (r Rule) applies(t protocol.UpdateType) bool {
	if len(r.Types) == 0 {
		return true
	}
	for _, candidate := range r.Types {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRules parses "[type|type/]name=expression" entries separated by ";".
//
//	create/max_transfer=amount <= 100;small_channels=nonce < 10000
func ParseRules(raw string) ([]Rule, error) {
	var out []Rule
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		head, expr, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(expr) == "" {
			return nil, fmt.Errorf("invalid rule %q", entry)
		}
		rule := Rule{Expression: strings.TrimSpace(expr)}
		if types, name, scoped := strings.Cut(head, "/"); scoped {
			for _, t := range strings.Split(types, "|") {
				ut := protocol.UpdateType(strings.TrimSpace(t))
				if !ut.Valid() {
					return nil, fmt.Errorf("rule %q: unknown update type %q", entry, t)
				}
				rule.Types = append(rule.Types, ut)
			}
			head = name
		}
		rule.Name = strings.TrimSpace(head)
		if rule.Name == "" {
			return nil, fmt.Errorf("invalid rule %q: missing name", entry)
		}
		out = append(out, rule)
	}
	return out, nil
}

type compiledRule struct {
	Rule
	expr *govaluate.EvaluableExpression
}

func compile(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		out = append(out, compiledRule{Rule: r, expr: expr})
	}
	return out, nil
}

// evaluate returns the first rule that does not hold for params.
func evaluate(rules []compiledRule, t protocol.UpdateType, params map[string]interface{}) error {
	for _, r := range rules {
		if !r.applies(t) {
			continue
		}
		result, err := r.expr.Evaluate(params)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return fmt.Errorf("rule %s: %w", r.Name, errors.New("expression did not evaluate to boolean"))
		}
		if !ok {
			return &ViolationError{Rule: r.Name, Expression: r.Expression}
		}
	}
	return nil
}

// ViolationError reports the rule that rejected an update.
type ViolationError struct {
	Rule       string
	Expression string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("rule %s violated: %s", e.Rule, e.Expression)
}
