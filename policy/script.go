package policy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/spritefill"
	"github.com/dop251/goja"
)

// scriptRule runs a compiled program on a private runtime. goja runtimes
// are not goroutine-safe, so evaluations are serialized.
type scriptRule struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	program *goja.Program
}

// Script compiles src as JavaScript with dop251/goja. src is either an
// expression whose truthy value vetoes the event, or a function body that
// calls event.preventDefault() or returns true.
func Script(src string, opts ...Option) (spritefill.Listener, error) {
	if src == "" {
		return nil, errors.New("js: script must not be empty")
	}

	program, err := goja.Compile("policy", fmt.Sprintf("(function(){ return (%s); })()", src), false)
	if err != nil {
		program, err = goja.Compile("policy", fmt.Sprintf("(function(){ %s\n})()", src), false)
		if err != nil {
			return nil, fmt.Errorf("js: failed to compile %q: %w", src, err)
		}
	}

	r := &scriptRule{vm: goja.New(), program: program}

	return listener(EngineScript, src, r, applyOptions(opts)), nil
}

func (r *scriptRule) deny(vars map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prevented := false
	event := make(map[string]any, len(vars)+1)
	for key, v := range vars {
		event[key] = v
		if err := r.vm.Set(key, v); err != nil {
			return false, err
		}
	}
	event["preventDefault"] = func() { prevented = true }
	if err := r.vm.Set("event", event); err != nil {
		return false, err
	}

	value, err := r.vm.RunProgram(r.program)
	if err != nil {
		return false, err
	}

	return prevented || value.ToBoolean(), nil
}
