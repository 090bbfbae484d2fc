package diff

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/verso/internal/ir"
)

// ExprRule binds a strategy, by name, to the kinds matched by an
// expression. The expression sees two variables: kind (string) and parents
// (list of strings, nearest supertype first). For example:
//
//	kind startsWith "wiki" || "html" in parents
type ExprRule struct {
	When     string
	Strategy string
}

// RuleFromExpr compiles expression into a Predicate. Evaluation errors count
// as no match and are logged to slog.Default().
func RuleFromExpr(expression string) (Predicate, error) {
	return compileRule(expression, slog.Default)
}

func compileRule(expression string, logger func() *slog.Logger) (Predicate, error) {
	program, err := expr.Compile(expression, expr.Env(exprEnv("", nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile rule %q: %w", expression, err)
	}
	return func(kind ir.Kind, parents []ir.Kind) bool {
		return runPredicate(program, expression, kind, parents, logger())
	}, nil
}

func runPredicate(program *vm.Program, expression string, kind ir.Kind, parents []ir.Kind, logger *slog.Logger) bool {
	out, err := expr.Run(program, exprEnv(kind, parents))
	if err != nil {
		logger.Warn("diff rule failed", "rule", expression, "kind", kind, "error", err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func exprEnv(kind ir.Kind, parents []ir.Kind) map[string]any {
	ps := make([]string, len(parents))
	for i, p := range parents {
		ps[i] = string(p)
	}
	return map[string]any{
		"kind":    string(kind),
		"parents": ps,
	}
}

// RegisterExprRules compiles each rule and registers it against the named
// strategy, in order.
func (r *Registry) RegisterExprRules(rules []ExprRule) error {
	for i, er := range rules {
		pred, err := compileRule(er.When, r.currentLogger)
		if err != nil {
			return err
		}
		s, err := r.Strategy(er.Strategy)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if err := r.RegisterRule(er.When, pred, s); err != nil {
			return err
		}
	}
	return nil
}
