package sandbox

import (
	"pytrace/internal/lang/interp"
)

// BuildGlobals constructs the guest global environment exposing only the
// whitelisted builtin names plus the always-present print/input/open
// stubs. Names not in allowedBuiltins and not one of the three stubs are
// unreachable from guest code — New in interp carries no builtins by
// itself, this is the only place that wires any in.
func BuildGlobals(sourceFilename string, scriptedInput []string, allowedBuiltins []string) *interp.Interpreter {
	globals := interp.NewEnvironment(nil)
	it := interp.New(globals, sourceFilename, scriptedInput)

	all := interp.DefaultBuiltins()
	it.Builtins["print"] = all["print"]
	it.Builtins["input"] = all["input"]
	it.Builtins["open"] = all["open"]

	for _, name := range allowedBuiltins {
		if fn, ok := all[name]; ok {
			it.Builtins[name] = fn
		}
	}
	return it
}
