package policy

import (
	"errors"
	"fmt"

	"github.com/arloliu/spritefill"
	celgo "github.com/google/cel-go/cel"
)

type celRule struct {
	program celgo.Program
}

// CEL compiles src with google/cel-go. Every variable is a string.
func CEL(src string, opts ...Option) (spritefill.Listener, error) {
	if src == "" {
		return nil, errors.New("cel: expression must not be empty")
	}

	envOpts := make([]celgo.EnvOption, 0, len(variables))
	for _, key := range variables {
		envOpts = append(envOpts, celgo.Variable(key, celgo.StringType))
	}
	env, err := celgo.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("cel: %w", err)
	}

	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel: failed to compile %q: %w", src, issues.Err())
	}
	if !ast.OutputType().IsExactType(celgo.BoolType) {
		return nil, fmt.Errorf("cel: %q must evaluate to bool, got %s", src, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel: %w", err)
	}

	return listener(EngineCEL, src, &celRule{program: prg}, applyOptions(opts)), nil
}

func (r *celRule) deny(vars map[string]any) (bool, error) {
	activation := make(map[string]any, len(vars))
	for key, v := range vars {
		activation[key] = fmt.Sprint(v)
	}

	out, _, err := r.program.Eval(activation)
	if err != nil {
		return false, err
	}

	deny, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel: result is %T, not bool", out.Value())
	}

	return deny, nil
}
