package policy

import (
	"errors"
	"fmt"

	"github.com/arloliu/spritefill"
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type exprRule struct {
	program *exprvm.Program
}

// Expr compiles src with expr-lang/expr.
func Expr(src string, opts ...Option) (spritefill.Listener, error) {
	if src == "" {
		return nil, errors.New("expr: expression must not be empty")
	}

	env := make(map[string]any, len(variables))
	for _, key := range variables {
		env[key] = ""
	}

	program, err := exprlang.Compile(src, exprlang.Env(env), exprlang.AsBool())
	if err != nil {
		return nil, fmt.Errorf("expr: failed to compile %q: %w", src, err)
	}

	return listener(EngineExpr, src, &exprRule{program: program}, applyOptions(opts)), nil
}

func (r *exprRule) deny(vars map[string]any) (bool, error) {
	out, err := exprlang.Run(r.program, vars)
	if err != nil {
		return false, err
	}

	deny, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expr: result is %T, not bool", out)
	}

	return deny, nil
}
