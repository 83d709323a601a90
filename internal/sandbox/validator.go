// Package sandbox implements the static validator (source → allow/deny)
// and the restricted execution environment the trace collector runs
// guest code inside.
package sandbox

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"pytrace/internal/lang/ast"
	"pytrace/internal/lang/parser"
)

// DefaultBlockedModules is the fixed module deny-list, matched against
// import-like syntax in raw source (the guest language has no import
// statement of its own, but the pattern scan still guards against
// syntactically-broken attempts to reach one).
var DefaultBlockedModules = []string{
	"os", "sys", "subprocess", "importlib", "builtins", "socket", "urllib",
	"http", "ftplib", "smtplib", "email", "ctypes", "mmap", "resource",
	"gc", "inspect", "threading", "multiprocessing", "asyncio", "concurrent",
}

// reflectionAttrs are attribute names that reach the interpreter's own
// reflection surface: builtins table, globals table, class hierarchy,
// method-resolution order, base classes, module loader, module spec,
// subclass enumeration.
var reflectionAttrs = map[string]bool{
	"__builtins__": true, "__globals__": true, "__class__": true,
	"__mro__": true, "__bases__": true, "__loader__": true,
	"__spec__": true, "__subclasses__": true,
}

// dangerousCalls is the AST-walk layer's banned call-target set. `input`
// is included deliberately even though the restricted environment (C5)
// already replaces it with a safe stub — defense in depth against the
// bare name regardless of what the environment wires it to.
var dangerousCalls = map[string]bool{
	"eval": true, "exec": true, "compile": true,
	"__import__": true, "open": true, "input": true,
}

var (
	reDynamicImport = regexp.MustCompile(`(?i)__import__\s*\(|importlib`)
	reDangerousCall = regexp.MustCompile(`(?i)\b(eval|exec|compile|open|file)\s*\(`)
	rePopenSystem   = regexp.MustCompile(`\.popen\s*\(|\.system\s*\(`)
	reAnyImport     = regexp.MustCompile(`(?im)^\s*(?:import|from)\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

func reflectionPattern() *regexp.Regexp {
	names := make([]string, 0, len(reflectionAttrs))
	for n := range reflectionAttrs {
		names = append(names, regexp.QuoteMeta(n))
	}
	return regexp.MustCompile(strings.Join(names, "|"))
}

func moduleImportPattern(blocked []string) *regexp.Regexp {
	quoted := make([]string, len(blocked))
	for i, m := range blocked {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile(`(?i)\b(?:import|from)\s+(` + strings.Join(quoted, "|") + `)\b`)
}

// Config bundles the structural limits and module lists the validator
// checks against; populated from internal/config.SandboxConfig.
type Config struct {
	MaxCodeLength    int
	MaxLineCount     int
	MaxIndentColumns int
	BlockedModules   []string
	AllowedModules   []string
}

// Verdict is the validator's allow/deny decision.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Validate runs the three-layer check described for the static
// validator: pattern scan, syntax-tree walk, structural limits. It
// short-circuits on the first failing layer.
func Validate(source string, cfg Config) Verdict {
	if v := validatePattern(source, cfg); !v.Allowed {
		return v
	}
	if v := validateSyntaxTree(source); !v.Allowed {
		return v
	}
	return validateStructure(source, cfg)
}

func validateStructure(source string, cfg Config) Verdict {
	maxLines := cfg.MaxLineCount
	if maxLines <= 0 {
		maxLines = 1000
	}
	maxIndent := cfg.MaxIndentColumns
	if maxIndent <= 0 {
		maxIndent = 200
	}

	lines := strings.Split(source, "\n")
	if len(lines) > maxLines {
		return Verdict{Reason: "source exceeds the maximum line count"}
	}
	if cfg.MaxCodeLength > 0 && len(source) > cfg.MaxCodeLength {
		return Verdict{Reason: "source exceeds the maximum character length"}
	}
	for _, line := range lines {
		indent := 0
		for _, c := range line {
			if c == ' ' || c == '\t' {
				indent++
				continue
			}
			break
		}
		if indent > maxIndent {
			return Verdict{Reason: "source contains an excessively indented line"}
		}
	}
	return Verdict{Allowed: true}
}

func validatePattern(source string, cfg Config) Verdict {
	if reDynamicImport.MatchString(source) {
		return Verdict{Reason: "dynamic import construct is not permitted"}
	}
	blocked := cfg.BlockedModules
	if len(blocked) == 0 {
		blocked = DefaultBlockedModules
	}
	if moduleImportPattern(blocked).MatchString(source) {
		return Verdict{Reason: "import of a blocked module"}
	}
	if reflectionPattern().MatchString(source) {
		return Verdict{Reason: "access to interpreter reflection surface is not permitted"}
	}
	if reDangerousCall.MatchString(source) {
		return Verdict{Reason: "call to a disallowed builtin"}
	}
	if rePopenSystem.MatchString(source) {
		return Verdict{Reason: "shell invocation is not permitted"}
	}
	logSuspiciousImports(source, blocked, cfg.AllowedModules)
	return Verdict{Allowed: true}
}

// logSuspiciousImports warns on any import that is neither explicitly
// blocked (already rejected above) nor explicitly allowed. It never
// rejects — these imports run, but get flagged for review.
func logSuspiciousImports(source string, blocked, allowed []string) {
	blockedSet := toSet(blocked)
	allowedSet := toSet(allowed)
	for _, m := range reAnyImport.FindAllStringSubmatch(source, -1) {
		module := m[1]
		if blockedSet[module] || allowedSet[module] {
			continue
		}
		logrus.WithField("module", module).Warn("import not on the allowed list, permitting but flagging as suspicious")
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func validateSyntaxTree(source string) Verdict {
	module, err := parser.Parse(source)
	if err != nil {
		return Verdict{Reason: "syntax error: " + err.Error()}
	}
	if reason, bad := walkForViolations(module.Body); bad {
		return Verdict{Reason: reason}
	}
	return Verdict{Allowed: true}
}

func walkForViolations(n ast.Node) (string, bool) {
	switch node := n.(type) {
	case nil:
		return "", false
	case *ast.Block:
		if node == nil {
			return "", false
		}
		for _, s := range node.Statements {
			if reason, bad := walkForViolations(s); bad {
				return reason, true
			}
		}
	case *ast.Assign:
		return anyBad(node.Target, node.Value)
	case *ast.ExprStmt:
		return walkForViolations(node.X)
	case *ast.If:
		if reason, bad := anyBad(node.Cond); bad {
			return reason, true
		}
		if reason, bad := walkForViolations(node.Then); bad {
			return reason, true
		}
		return walkForViolations(node.Else)
	case *ast.While:
		if reason, bad := anyBad(node.Cond); bad {
			return reason, true
		}
		return walkForViolations(node.Body)
	case *ast.For:
		if reason, bad := anyBad(node.Iterable); bad {
			return reason, true
		}
		return walkForViolations(node.Body)
	case *ast.FuncDef:
		return walkForViolations(node.Body)
	case *ast.ClassDef:
		for _, m := range node.Methods {
			if reason, bad := walkForViolations(m); bad {
				return reason, true
			}
		}
	case *ast.Return:
		return anyBad(node.Value)
	case *ast.ListLit:
		return anyBad(node.Elements...)
	case *ast.TupleLit:
		return anyBad(node.Elements...)
	case *ast.SetLit:
		return anyBad(node.Elements...)
	case *ast.DictLit:
		for _, e := range node.Entries {
			if reason, bad := anyBad(e.Key, e.Value); bad {
				return reason, true
			}
		}
	case *ast.BinOp:
		return anyBad(node.Left, node.Right)
	case *ast.BoolOp:
		return anyBad(node.Left, node.Right)
	case *ast.Compare:
		return anyBad(node.Left, node.Right)
	case *ast.UnaryOp:
		return anyBad(node.X)
	case *ast.IfExp:
		return anyBad(node.Cond, node.Then, node.Else)
	case *ast.Index:
		return anyBad(node.X, node.Key)
	case *ast.Attribute:
		if reflectionAttrs[node.Name] {
			return "access to interpreter reflection surface is not permitted", true
		}
		return walkForViolations(node.X)
	case *ast.Call:
		if id, ok := node.Fn.(*ast.Ident); ok && dangerousCalls[id.Name] {
			return "call to a disallowed builtin: " + id.Name, true
		}
		if reason, bad := walkForViolations(node.Fn); bad {
			return reason, true
		}
		return anyBad(node.Args...)
	}
	return "", false
}

func anyBad(nodes ...ast.Node) (string, bool) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if reason, bad := walkForViolations(n); bad {
			return reason, true
		}
	}
	return "", false
}
