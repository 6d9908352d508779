package plan

import "github.com/nervusdb/nervusdb/query/ast"

// BindingKind classifies what a bound variable name actually holds, used
// both by validation (VariableTypeConflict) and by the executor to know
// how to re-bind a variable (e.g. a Node binding carries an internal id, a
// RelationshipList carries a []EdgeRef).
type BindingKind int

const (
	KindUnknown BindingKind = iota
	KindNode
	KindRelationship
	KindRelationshipList
	KindPath
	KindScalar
)

// Scope tracks every name bound so far in the current clause sequence and
// its kind, the input to binding analysis (spec §4.10).
type Scope struct {
	kinds map[string]BindingKind
	order []string
}

func NewScope() *Scope { return &Scope{kinds: map[string]BindingKind{}} }

func (s *Scope) Bind(name string, kind BindingKind) error {
	if name == "" {
		return nil
	}
	if existing, ok := s.kinds[name]; ok {
		if existing != kind && kind != KindUnknown && existing != KindUnknown {
			return errf(VariableTypeConflict, "variable %q already bound as a different kind", name)
		}
		return nil
	}
	s.kinds[name] = kind
	s.order = append(s.order, name)
	return nil
}

// Clone returns an independent copy, used when a clause (e.g. CALL {
// subquery }) needs its own scope that can diverge from its parent's.
func (s *Scope) Clone() *Scope {
	out := &Scope{kinds: make(map[string]BindingKind, len(s.kinds)), order: append([]string(nil), s.order...)}
	for k, v := range s.kinds {
		out.kinds[k] = v
	}
	return out
}

func (s *Scope) Lookup(name string) (BindingKind, bool) {
	k, ok := s.kinds[name]
	return k, ok
}

func (s *Scope) MustLookup(name string) (BindingKind, error) {
	k, ok := s.kinds[name]
	if !ok {
		return KindUnknown, errf(UndefinedVariable, "variable %q is not defined", name)
	}
	return k, nil
}

// Node is implemented by every physical plan node kind (spec §4.10). It is
// a marker interface; callers recover the concrete shape with a type
// switch, same as query/ast's Clause/Expr.
type Node interface{ planNode() }

type ReturnOne struct{}

func (ReturnOne) planNode() {}

// Values emits one row per entry in Rows, each evaluated by the executor
// against an empty row. Build never produces it: a query body with no MATCH
// plans as ReturnOne or as a nil Input.
type Values struct{ Rows []map[string]ast.Expr }

func (Values) planNode() {}

type NodeScan struct {
	Alias    string
	Label    string // "" = no label filter
	Optional bool
}

func (NodeScan) planNode() {}

type IndexSeek struct {
	Alias    string
	Label    string
	Property string
	ValueExpr ast.Expr
	Fallback Node // labeled NodeScan to use if no such index exists at execution time
}

func (IndexSeek) planNode() {}

// MatchExpand is the shared shape of MatchOut/MatchIn/MatchUndirected —
// kept as a single struct with a Direction tag rather than three types
// since they differ only in which side of the edge key is fixed.
type MatchExpand struct {
	Direction   ast.Direction
	Input       Node
	SrcAlias    string
	RelAlias    string // "" if unbound
	RelTypes    []string
	DstAlias    string
	DstLabels   []string
	SrcPrebound bool
	PathAlias   string

	Optional       bool
	OptionalUnbind []string // aliases to null out when nothing matches (OPTIONAL MATCH)

	VarLength *ast.VarLengthRange // non-nil for bounded BFS expansion
}

func (MatchExpand) planNode() {}

// MatchBoundRel handles a pattern whose relationship alias is already
// bound from an earlier clause (e.g. `MATCH ()-[r]->() WHERE r = $rel`):
// rather than scanning, it simply re-derives the endpoint bindings from
// the already-known edge.
type MatchBoundRel struct {
	Input    Node
	RelAlias string
	SrcAlias string
	DstAlias string
}

func (MatchBoundRel) planNode() {}

type Expand struct {
	Input Node
	Expr  ast.Expr
	As    string
}

func (Expand) planNode() {}

type Filter struct {
	Input     Node
	Predicate ast.Expr
}

func (Filter) planNode() {}

type ProjectColumn struct {
	Expr  ast.Expr
	Alias string
}

type Project struct {
	Input   Node
	Columns []ProjectColumn
}

func (Project) planNode() {}

// AggregateItem is one group-by or aggregate output column.
type AggregateItem struct {
	Expr     ast.Expr // for group-by items; nil for pure aggregates
	Alias    string
	Agg      string // "" for a plain group-by passthrough; else "count"/"sum"/...
	AggArg   ast.Expr
	Distinct bool
	CountStar bool
}

type Aggregate struct {
	Input     Node
	GroupBy   []AggregateItem
	Aggregates []AggregateItem
}

func (Aggregate) planNode() {}

type OrderBy struct {
	Input Node
	Items []ast.OrderItem
}

func (OrderBy) planNode() {}

type Skip struct {
	Input Node
	Expr  ast.Expr
}

func (Skip) planNode() {}

type Limit struct {
	Input Node
	Expr  ast.Expr
}

func (Limit) planNode() {}

type Distinct struct{ Input Node }

func (Distinct) planNode() {}

type Unwind struct {
	Input Node
	Expr  ast.Expr
	Alias string
}

func (Unwind) planNode() {}

type CartesianProduct struct{ Left, Right Node }

func (CartesianProduct) planNode() {}

type NestedLoopJoin struct {
	Left, Right Node
	Predicate   ast.Expr
}

func (NestedLoopJoin) planNode() {}

type LeftOuterJoin struct {
	Left, Right Node
	Predicate   ast.Expr
}

func (LeftOuterJoin) planNode() {}

// OptionalWhereFixup implements the planner's optional-match rejoin: run
// Outer (the non-optional skeleton) and Filtered (outer + the optional
// pattern, filtered) independently, then for each outer row emit the
// matching filtered rows, or one row with NullAliases set to null if none
// matched (spec §4.10/§4.11).
type OptionalWhereFixup struct {
	Outer       Node
	Filtered    Node
	NullAliases []string
}

func (OptionalWhereFixup) planNode() {}

// Apply is a correlated subquery join: Subquery is planned once, and the
// executor builds a fresh operator tree for it per Input row with Input's
// bindings visible.
type Apply struct {
	Input    Node
	Subquery Node
}

func (Apply) planNode() {}

type ProcedureCall struct {
	Input     Node
	Name      string
	Args      []ast.Expr
	Yields    []ast.YieldItem
}

func (ProcedureCall) planNode() {}

type Union struct {
	Left, Right Node
	All         bool
}

func (Union) planNode() {}

// --- Write plan nodes ---

type Create struct {
	Input   Node
	Pattern ast.Pattern
	// MergeFlag is copied onto the executor's createOp, which does not read
	// it; the planner never sets it, since MERGE plans as its own Merge node.
	MergeFlag bool
}

func (Create) planNode() {}

type SetProperty struct {
	Input    Node
	Variable string
	Property string
	Value    ast.Expr
}

func (SetProperty) planNode() {}

type SetPropertiesFromMap struct {
	Input    Node
	Variable string
	Map      ast.Expr
	Append   bool
}

func (SetPropertiesFromMap) planNode() {}

type SetLabels struct {
	Input    Node
	Variable string
	Labels   []string
}

func (SetLabels) planNode() {}

type RemoveProperty struct {
	Input    Node
	Variable string
	Property string
}

func (RemoveProperty) planNode() {}

type RemoveLabels struct {
	Input    Node
	Variable string
	Labels   []string
}

func (RemoveLabels) planNode() {}

type Delete struct {
	Input  Node
	Detach bool
	Exprs  []ast.Expr
}

func (Delete) planNode() {}

type Foreach struct {
	Input    Node
	Variable string
	List     ast.Expr
	Sub      Node
}

func (Foreach) planNode() {}

// Merge has no dedicated entry in the physical-node-kind list because the
// distillation describes MERGE only through the planner's prose ("try the
// match, else create"); it is modeled here as its own node rather than
// awkwardly overloading Create, since the executor needs Pattern plus both
// SET branches together to decide which branch ran (spec §4.10, §8 P6).
type Merge struct {
	Input    Node
	Pattern  ast.Pattern
	OnCreate []ast.SetItem
	OnMatch  []ast.SetItem
}

func (Merge) planNode() {}

// Plan is the top-level output of Build: a physical plan tree plus the
// final column order (for Project-less tails like `RETURN *`).
type Plan struct {
	Root    Node
	Columns []string
}
