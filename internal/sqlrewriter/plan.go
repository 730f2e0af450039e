package sqlrewriter

// ColumnDecl is one "AS (col TYPE, ...)" output-schema entry.
type ColumnDecl struct {
	Name string
	Type string
}

// MapPlan is the parsed shape of an "RVBBIT MAP"/"RVBBIT RUN" statement
// (§4.12.2). When Parallelism > 1, the SQL engine never executes this
// statement directly — the caller must route it through udfruntime's
// MAP PARALLEL interception instead.
type MapPlan struct {
	Verb         string // "MAP" or "RUN"
	CascadePath  string
	Parallelism  int
	Distinct     bool
	Alias        string
	OutputSchema []ColumnDecl
	InputQuery   string
	Options      map[string]string
}

// AggregateOperator registers a cascade-declared aggregate SQL alias
// (SUMMARIZE, THEMES, CONSENSUS, ...) resolved to its backing UDF.
type AggregateOperator struct {
	Alias   string
	UDFName string
	Arity   int
}

// Plan accumulates everything the rewrite pipeline discovered about one
// statement, alongside the rewritten SQL text itself.
type Plan struct {
	Background bool
	Analyze    string
	Map        *MapPlan
}
