// Package seed holds a handful of canned guest-language snippets usable
// by the transport layer's "load a sample" affordance and directly by
// integration tests, grounded on the original system's seed_data script
// (see SPEC_FULL.md's Supplemented features).
package seed

// Program is one canned snippet a client can load without typing it.
type Program struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// Programs is the fixed catalog, in display order. The first four mirror
// spec.md §8's end-to-end scenarios 1-3 and 6; the rest round out the
// catalog with aliasing and container examples a frontend demo benefits
// from.
var Programs = []Program{
	{
		Name:        "hello_arithmetic",
		Description: "Assignment and arithmetic with a single print",
		Code:        "x = 1\ny = x + 1\nprint(y)",
	},
	{
		Name:        "list_aliasing",
		Description: "Two names referring to the same list object",
		Code:        "a = [1, 2]\nb = a\nb.append(3)\nprint(a)",
	},
	{
		Name:        "recursive_factorial_style",
		Description: "Recursion building up a deep call stack",
		Code:        "def f(n):\n    return f(n-1) if n else 0\nf(5)",
	},
	{
		Name:        "zero_division",
		Description: "An uncaught exception captured as a trace step",
		Code:        "1/0",
	},
	{
		Name:        "nested_dict",
		Description: "A dict of lists, showing nested heap references",
		Code:        "d = {\"a\": [1, 2], \"b\": [3, 4]}\nprint(d)",
	},
	{
		Name:        "cyclic_list",
		Description: "A list that contains itself",
		Code:        "a = []\na.append(a)\nprint(len(a))",
	},
	{
		Name:        "class_instance",
		Description: "A user-defined class and one instance",
		Code:        "class Counter:\n    def __init__(self):\n        self.n = 0\n    def bump(self):\n        self.n = self.n + 1\n        return self.n\n\nc = Counter()\nprint(c.bump())\nprint(c.bump())",
	},
}

// ByName looks up a sample program by name. ok is false when no program
// with that name exists in the catalog.
func ByName(name string) (Program, bool) {
	for _, p := range Programs {
		if p.Name == name {
			return p, true
		}
	}
	return Program{}, false
}
