// Package policy builds veto listeners from expressions.
//
// A policy is a boolean expression over the fields of a lifecycle event;
// when it evaluates to true the event is canceled. Three engines are
// available:
//
//   - Expr: github.com/expr-lang/expr, e.g. `name == "load" && address contains "cdn"`
//   - CEL: github.com/google/cel-go, e.g. `name == "load" && address.startsWith("http:")`
//   - Script: JavaScript via github.com/dop251/goja; the script may also call
//     event.preventDefault()
//
// Available variables: id, name, type, tag, address, identifier, value and
// error. Variables a given event does not carry are empty strings.
//
// Usage:
//
//	deny, err := policy.Expr(`name == "load" && address endsWith "flags.svg"`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p, err := spritefill.New(doc).WithListener(deny).Build()
package policy

import (
	"fmt"
	"log/slog"

	"github.com/arloliu/spritefill"
)

// Engine names accepted by Compile.
const (
	EngineExpr   = "expr"
	EngineCEL    = "cel"
	EngineScript = "js"
)

// variables are always bound, so expressions may reference them on any event.
var variables = []string{"id", "name", "type", "tag", "address", "identifier", "value", "error"}

// rule decides whether an event is vetoed.
type rule interface {
	deny(vars map[string]any) (bool, error)
}

type options struct {
	logger *slog.Logger
}

// Option configures a policy listener.
type Option func(*options)

// WithLogger reports evaluation errors. Default discards them.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return o
}

// bindings flattens ev into the variable set every engine sees.
func bindings(ev *spritefill.Event) map[string]any {
	fields := ev.Fields()
	vars := make(map[string]any, len(variables))
	for _, key := range variables {
		v, ok := fields[key]
		if !ok || v == nil {
			v = ""
		}
		vars[key] = v
	}

	return vars
}

// listener adapts r to a spritefill.Listener. A failing evaluation never
// vetoes.
func listener(engine, src string, r rule, o options) spritefill.Listener {
	return func(ev *spritefill.Event) {
		deny, err := r.deny(bindings(ev))
		if err != nil {
			o.logger.Warn("policy evaluation failed",
				"engine", engine,
				"policy", src,
				"event", ev.Type,
				"id", ev.ID,
				"error", err,
			)
			return
		}
		if deny {
			o.logger.Debug("policy vetoed event", "engine", engine, "policy", src, "event", ev.Type, "id", ev.ID)
			ev.PreventDefault()
		}
	}
}

// Compile builds a listener with the named engine.
func Compile(engine, src string, opts ...Option) (spritefill.Listener, error) {
	switch engine {
	case EngineExpr, "":
		return Expr(src, opts...)
	case EngineCEL:
		return CEL(src, opts...)
	case EngineScript, "javascript":
		return Script(src, opts...)
	default:
		return nil, fmt.Errorf("unknown policy engine %q", engine)
	}
}

// FromConfig compiles every deny policy of cfg with its configured engine.
func FromConfig(cfg spritefill.Config, opts ...Option) ([]spritefill.Listener, error) {
	listeners := make([]spritefill.Listener, 0, len(cfg.Policy.Deny))
	for _, src := range cfg.Policy.Deny {
		l, err := Compile(cfg.Policy.Engine, src, opts...)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
	}

	return listeners, nil
}
