package exec

import (
	"fmt"
	"sync"
)

// Function is one scalar or aggregate function registered into a context.
// The body lives in the engine; DDL is the engine-side definition applied at
// context setup, empty for functions resolved natively.
type Function struct {
	Name string
	DDL  string
}

// FunctionRegistry holds the functions of one execution context. Lookup is
// case-sensitive; a name registers at most once per context.
type FunctionRegistry struct {
	mu     sync.RWMutex
	byName map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{byName: make(map[string]Function)}
}

func (r *FunctionRegistry) Register(f Function) error {
	if f.Name == "" {
		return fmt.Errorf("register function: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[f.Name]; ok {
		return fmt.Errorf("register function: %s already registered", f.Name)
	}
	r.byName[f.Name] = f
	return nil
}

func (r *FunctionRegistry) Lookup(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	return out
}

// builtinFunctions are the search functions every context carries. Bodies
// are engine macros over native functions.
func builtinFunctions() []Function {
	return []Function{
		{
			Name: "str_match",
			DDL:  "CREATE OR REPLACE MACRO str_match(col, pat) AS col LIKE '%' || pat || '%'",
		},
		{
			Name: "str_match_ignore_case",
			DDL:  "CREATE OR REPLACE MACRO str_match_ignore_case(col, pat) AS lower(col) LIKE '%' || lower(pat) || '%'",
		},
		{
			Name: "match_all",
			DDL:  "CREATE OR REPLACE MACRO match_all(col, pat) AS lower(col) LIKE '%' || lower(pat) || '%'",
		},
		{
			Name: "fuzzy_match",
			DDL:  "CREATE OR REPLACE MACRO fuzzy_match(col, pat, dist) AS levenshtein(col, pat) <= dist",
		},
		{
			Name: "re_match",
			DDL:  "CREATE OR REPLACE MACRO re_match(col, pat) AS regexp_matches(col, pat)",
		},
		{
			Name: "re_not_match",
			DDL:  "CREATE OR REPLACE MACRO re_not_match(col, pat) AS NOT regexp_matches(col, pat)",
		},
		{
			Name: "time_range",
			DDL:  "CREATE OR REPLACE MACRO time_range(col, lo, hi) AS col >= lo AND col < hi",
		},
		{
			Name: "date_format",
			DDL:  "CREATE OR REPLACE MACRO date_format(ts, fmt) AS strftime(to_timestamp(ts / 1000000), fmt)",
		},
		{
			Name: "histogram",
			DDL:  "CREATE OR REPLACE MACRO histogram(ts, interval_us) AS (ts // interval_us) * interval_us",
		},
	}
}
