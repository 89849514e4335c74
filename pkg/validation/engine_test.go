package validation

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/ritzau/pipegraph/pkg/model"
)

type nodeSpec struct {
	id, category string
	kind         model.Kind
	props        map[string]string
}

func build(nodes []nodeSpec, edges ...[2]string) *model.Graph {
	g := model.NewGraph()
	for _, n := range nodes {
		g.AddNode(&model.Node{ID: n.id, Kind: n.kind, Category: n.category, Properties: n.props})
	}
	for _, e := range edges {
		g.AddEdge(&model.Edge{Source: e[0], Target: e[1]})
	}
	return g
}

func byRule(results []model.ValidationResult, rule string) []model.ValidationResult {
	var out []model.ValidationResult
	for _, r := range results {
		if r.Rule == rule {
			out = append(out, r)
		}
	}
	return out
}

func errorsOf(results []model.ValidationResult) []model.ValidationResult {
	var out []model.ValidationResult
	for _, r := range results {
		if r.Severity == model.SeverityError {
			out = append(out, r)
		}
	}
	return out
}

var (
	oledbSource = func(id string) nodeSpec {
		return nodeSpec{id, "OLEDBSource", model.KindSource, map[string]string{"connection": "dw"}}
	}
	flatFileDest = func(id string) nodeSpec {
		return nodeSpec{id, "FlatFileDestination", model.KindDestination, map[string]string{"filePath": "/out.csv"}}
	}
	sortNode = func(id string) nodeSpec {
		return nodeSpec{id, "Sort", model.KindTransformation, map[string]string{"sortKeys": "id"}}
	}
)

func TestValidate_UnconnectedSourceWarnsWithoutErrors(t *testing.T) {
	g := build([]nodeSpec{oledbSource("S"), flatFileDest("D")})

	results := Validate(g, model.PlatformSSIS)

	if errs := errorsOf(results); len(errs) != 0 {
		t.Fatalf("Expected no errors, got %v", errs)
	}
	noDest := byRule(results, ruleNoDestination)
	if len(noDest) != 1 || noDest[0].ID != "S" || noDest[0].Severity != model.SeverityWarning {
		t.Errorf("Expected one no-destination warning on S, got %v", noDest)
	}
	if !strings.Contains(noDest[0].Message, "will not be loaded anywhere") {
		t.Errorf("Unexpected message %q", noDest[0].Message)
	}
}

func TestValidate_DanglingEdgeReportedOnce(t *testing.T) {
	g := build(
		[]nodeSpec{oledbSource("src"), sortNode("sort"), flatFileDest("dst")},
		[2]string{"src", "sort"}, [2]string{"sort", "dst"},
		[2]string{"sort", "ghost"}, [2]string{"ghost", "phantom"},
	)

	results := Validate(g, model.PlatformSSIS)

	dangling := byRule(results, ruleDanglingEdge)
	if len(dangling) != 2 {
		t.Fatalf("Expected 2 dangling edge errors, got %d: %v", len(dangling), dangling)
	}
	for _, id := range []string{"sort->ghost", "ghost->phantom"} {
		count := 0
		for _, r := range results {
			if r.ID == id {
				count++
			}
		}
		if count != 1 {
			t.Errorf("Expected exactly one result for edge %s, got %d", id, count)
		}
	}

	// The rest of the graph is still validated: dangling edges do not count as outputs.
	if len(byRule(results, "too-many-outputs")) != 0 {
		t.Errorf("Dangling edges must not count against output limits")
	}
	if sort, _ := g.Node("sort"); !sort.IsSorted {
		t.Errorf("Expected Sort rule to run despite the dangling edges")
	}
}

func TestValidate_SelfLoopReportedOnce(t *testing.T) {
	g := build([]nodeSpec{oledbSource("src"), sortNode("sort"), flatFileDest("dst")},
		[2]string{"src", "sort"}, [2]string{"sort", "sort"}, [2]string{"sort", "dst"})

	cycles := byRule(Validate(g, model.PlatformSSIS), ruleCycle)

	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle error, got %d", len(cycles))
	}
	if !slices.Equal(cycles[0].AffectedNodeIDs, []string{"sort"}) {
		t.Errorf("Expected cycle on [sort], got %v", cycles[0].AffectedNodeIDs)
	}
}

func TestValidate_ThreeNodeCycle(t *testing.T) {
	g := build(
		[]nodeSpec{
			oledbSource("S"),
			{"T", "DerivedColumn", model.KindTransformation, map[string]string{"expression": "x+1"}},
			{"U", "DataConversion", model.KindTransformation, map[string]string{"columns": "x"}},
		},
		[2]string{"S", "T"}, [2]string{"T", "U"}, [2]string{"U", "S"},
	)

	results := Validate(g, model.PlatformSSIS)
	cycles := byRule(results, ruleCycle)

	if len(cycles) != 1 {
		t.Fatalf("Expected a single cycle error, got %d", len(cycles))
	}
	if cycles[0].Severity != model.SeverityError {
		t.Errorf("Cycles must be errors, got %s", cycles[0].Severity)
	}
	if !slices.Equal(cycles[0].AffectedNodeIDs, []string{"S", "T", "U"}) {
		t.Errorf("Expected cycle to reference S, T and U, got %v", cycles[0].AffectedNodeIDs)
	}
}

func TestValidate_SortedMergeNamesMissingSort(t *testing.T) {
	g := build(
		[]nodeSpec{
			oledbSource("customers"),
			sortNode("sort"),
			oledbSource("orders"),
			{"merge", "MergeJoin", model.KindTransformation, map[string]string{"joinKeys": "id"}},
			flatFileDest("dst"),
		},
		[2]string{"customers", "sort"}, [2]string{"sort", "merge"},
		[2]string{"orders", "merge"}, [2]string{"merge", "dst"},
	)
	if sort, _ := g.Node("sort"); sort.IsSorted {
		t.Fatal("Sort must start out unsorted")
	}

	results := Validate(g, model.PlatformSSIS)

	unsorted := byRule(results, "unsorted-input")
	if len(unsorted) != 1 {
		t.Fatalf("Expected 1 unsorted-input error, got %v", unsorted)
	}
	r := unsorted[0]
	if r.ID != "merge" || r.Severity != model.SeverityError {
		t.Errorf("Expected error on merge, got %+v", r)
	}
	if !strings.Contains(r.Message, "orders") || !strings.Contains(r.Suggestion, "Sort") {
		t.Errorf("Expected message to name the unsorted input and suggest a Sort, got %q / %q", r.Message, r.Suggestion)
	}

	sort, _ := g.Node("sort")
	if !sort.IsSorted {
		t.Errorf("Expected a successful Sort check to mark the node as sorted")
	}

	// Declaring the second source sorted resolves the error.
	g.UpdateProperties("orders", map[string]string{"isSorted": "true"})
	if got := byRule(Validate(g, model.PlatformSSIS), "unsorted-input"); len(got) != 0 {
		t.Errorf("Expected no unsorted-input errors once orders is sorted, got %v", got)
	}
}

func TestValidate_ClearedSortedPropertyIsNotRemembered(t *testing.T) {
	sorted := func(id string) nodeSpec {
		n := oledbSource(id)
		n.props = map[string]string{"connection": "dw", "isSorted": "true"}
		return n
	}
	g := build(
		[]nodeSpec{sorted("a"), sorted("b"), {"merge", "Merge", model.KindTransformation, nil}},
		[2]string{"a", "merge"}, [2]string{"b", "merge"},
	)
	if got := byRule(Validate(g, model.PlatformSSIS), "unsorted-input"); len(got) != 0 {
		t.Fatalf("Expected no unsorted-input errors, got %v", got)
	}

	g.UpdateProperties("a", map[string]string{"isSorted": ""})

	for i := range 2 {
		got := byRule(Validate(g, model.PlatformSSIS), "unsorted-input")
		if len(got) != 1 || !slices.Contains(got[0].AffectedNodeIDs, "a") {
			t.Errorf("pass %d: expected one unsorted-input error naming a, got %v", i, got)
		}
	}
}

func TestValidate_IsDeterministic(t *testing.T) {
	g := build(
		[]nodeSpec{
			oledbSource("a"), sortNode("sort"), oledbSource("b"),
			{"merge", "Merge", model.KindTransformation, nil},
			{"loop", "Multicast", model.KindTransformation, nil},
			{"dst", "OLEDBDestination", model.KindDestination, nil},
		},
		[2]string{"a", "sort"}, [2]string{"sort", "merge"}, [2]string{"b", "merge"},
		[2]string{"merge", "loop"}, [2]string{"loop", "merge"}, [2]string{"loop", "dst"},
		[2]string{"loop", "missing"},
	)

	first := Validate(g, model.PlatformSSIS)
	second := Validate(g, model.PlatformSSIS)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Validate is not deterministic:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestValidate_DegreeRules(t *testing.T) {
	tests := []struct {
		name  string
		nodes []nodeSpec
		edges [][2]string
		rule  string
		id    string
	}{
		{
			name:  "source with input",
			nodes: []nodeSpec{oledbSource("a"), oledbSource("b"), flatFileDest("d")},
			edges: [][2]string{{"a", "b"}, {"b", "d"}},
			rule:  "source-input",
			id:    "b",
		},
		{
			name:  "destination with output",
			nodes: []nodeSpec{oledbSource("a"), flatFileDest("d"), flatFileDest("e")},
			edges: [][2]string{{"a", "d"}, {"d", "e"}},
			rule:  "destination-output",
			id:    "d",
		},
		{
			name:  "transformation without input",
			nodes: []nodeSpec{sortNode("s"), flatFileDest("d")},
			edges: [][2]string{{"s", "d"}},
			rule:  "missing-input",
			id:    "s",
		},
		{
			name:  "transformation with two outputs",
			nodes: []nodeSpec{oledbSource("a"), sortNode("s"), flatFileDest("d"), flatFileDest("e")},
			edges: [][2]string{{"a", "s"}, {"s", "d"}, {"s", "e"}},
			rule:  "too-many-outputs",
			id:    "s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(tt.nodes, tt.edges...)
			found := byRule(Validate(g, model.PlatformSSIS), tt.rule)
			if len(found) != 1 || found[0].ID != tt.id || found[0].Severity != model.SeverityError {
				t.Errorf("Expected one %s error on %s, got %v", tt.rule, tt.id, found)
			}
		})
	}
}

func TestValidate_MulticastAllowsBroadcast(t *testing.T) {
	g := build(
		[]nodeSpec{oledbSource("a"), {"m", "Multicast", model.KindTransformation, nil}, flatFileDest("d"), flatFileDest("e")},
		[2]string{"a", "m"}, [2]string{"m", "d"}, [2]string{"m", "e"},
	)

	if errs := errorsOf(Validate(g, model.PlatformSSIS)); len(errs) != 0 {
		t.Errorf("Expected Multicast to feed two destinations without errors, got %v", errs)
	}
}

func TestValidate_CrossTypeRules(t *testing.T) {
	g := build(
		[]nodeSpec{
			{"flat", "FlatFileSource", model.KindSource, map[string]string{"filePath": "in.csv"}},
			{"db", "OLEDBDestination", model.KindDestination, map[string]string{"connection": "dw", "tableName": "t", "fastLoad": "true"}},
			{"xls", "ExcelSource", model.KindSource, map[string]string{"filePath": "in.xlsx", "sheetName": "s"}},
			flatFileDest("out"),
		},
		[2]string{"flat", "db"}, [2]string{"xls", "out"},
	)

	results := Validate(g, model.PlatformSSIS)

	typed := byRule(results, "untyped-to-typed")
	if len(typed) != 1 || typed[0].ID != "flat->db" || typed[0].Severity != model.SeverityError {
		t.Fatalf("Expected untyped-to-typed error on flat->db, got %v", typed)
	}
	if !strings.Contains(typed[0].Suggestion, "Data Conversion") {
		t.Errorf("Expected a concrete conversion suggestion, got %q", typed[0].Suggestion)
	}

	trunc := byRule(results, "row-truncation")
	if len(trunc) != 1 || trunc[0].Severity != model.SeverityWarning {
		t.Errorf("Expected a row-truncation warning, got %v", trunc)
	}
}

func TestValidate_SchemaRules(t *testing.T) {
	g := build(
		[]nodeSpec{
			{"web", "WebActivity", model.KindControlFlowTask, map[string]string{"method": "GET"}},
			{"wait", "Wait", model.KindControlFlowTask, map[string]string{"waitTimeInSeconds": "-5"}},
			{"waitText", "Wait", model.KindControlFlowTask, map[string]string{"waitTimeInSeconds": "soon"}},
			{"set", "SetVariable", model.KindControlFlowTask, nil},
			{"ftp", "WebActivity", model.KindControlFlowTask, map[string]string{"method": "GET", "url": "ftp://x"}},
			{"waitNaN", "Wait", model.KindControlFlowTask, map[string]string{"waitTimeInSeconds": "NaN"}},
			{"waitInf", "Wait", model.KindControlFlowTask, map[string]string{"waitTimeInSeconds": "+Inf"}},
		},
		[2]string{"web", "wait"}, [2]string{"wait", "waitText"}, [2]string{"waitText", "set"}, [2]string{"set", "ftp"},
		[2]string{"ftp", "waitNaN"}, [2]string{"waitNaN", "waitInf"},
	)

	results := Validate(g, model.PlatformADF)

	tests := []struct {
		id, rule string
	}{
		{"web", "missing-property"},
		{"wait", "out-of-range"},
		{"waitText", "invalid-property"},
		{"set", "missing-property"},
		{"ftp", "invalid-url"},
		{"waitNaN", "invalid-property"},
		{"waitInf", "invalid-property"},
	}
	for _, tt := range tests {
		found := false
		for _, r := range ForNode(results, tt.id) {
			if r.Rule == tt.rule && r.Severity == model.SeverityError {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected %s error on %s", tt.rule, tt.id)
		}
	}

	// Control-flow tasks do not carry data, so no reachability warnings.
	if got := byRule(results, ruleNoDestination); len(got) != 0 {
		t.Errorf("Expected no no-destination warnings for control flow, got %v", got)
	}
}

func TestValidate_ADFBranches(t *testing.T) {
	g := build([]nodeSpec{
		{"copy", "CopyData", model.KindDataMovement, map[string]string{"source": "a", "sink": "b"}},
		{"fail", "Fail", model.KindControlFlowTask, map[string]string{"message": "m", "errorCode": "1"}},
		{"after", "Wait", model.KindControlFlowTask, nil},
	})
	g.AddEdge(&model.Edge{Source: "copy", Target: "fail", Branch: model.BranchFailed})
	g.AddEdge(&model.Edge{Source: "fail", Target: "after", Branch: "Sometimes"})

	results := Validate(g, model.PlatformADF)

	if got := byRule(results, "invalid-branch"); len(got) != 1 || got[0].ID != "fail->after" {
		t.Errorf("Expected invalid-branch on fail->after, got %v", got)
	}
	if got := byRule(results, "destination-output"); len(got) != 1 || got[0].ID != "fail" {
		t.Errorf("Expected Fail activity to reject outgoing connections, got %v", got)
	}
	if got := byRule(results, "no-failure-path"); len(got) != 0 {
		t.Errorf("Expected a Failed branch to satisfy the failure-path advisory, got %v", got)
	}
}

func TestValidate_DatabricksRules(t *testing.T) {
	g := build(
		[]nodeSpec{
			{"csv", "CSVSource", model.KindSource, map[string]string{"path": "/raw"}},
			{"orders", "DeltaSource", model.KindSource, map[string]string{"table": "orders"}},
			{"join", "Join", model.KindTransformation, map[string]string{"joinKey": "id"}},
			{"order", "OrderBy", model.KindTransformation, map[string]string{"orderBy": "id"}},
			{"delta", "DeltaSink", model.KindDestination, nil},
			{"jdbc", "JDBCSink", model.KindDestination, map[string]string{"url": "jdbc:x", "table": "t"}},
		},
		[2]string{"csv", "join"}, [2]string{"orders", "join"}, [2]string{"join", "order"},
		[2]string{"order", "delta"}, [2]string{"csv", "jdbc"},
	)

	results := Validate(g, model.PlatformDatabricks)

	if got := byRule(results, "untyped-to-typed"); len(got) != 1 || got[0].ID != "csv->jdbc" {
		t.Errorf("Expected untyped-to-typed on csv->jdbc, got %v", got)
	}
	if got := byRule(results, "global-sort"); len(got) != 1 || got[0].Severity != model.SeverityWarning {
		t.Errorf("Expected a global-sort warning, got %v", got)
	}
	if got := byRule(results, "missing-property"); len(got) != 1 || got[0].ID != "delta" {
		t.Errorf("Expected DeltaSink without table or path to be flagged, got %v", got)
	}
	if got := byRule(results, "optimize-write"); len(got) != 1 || got[0].Severity != model.SeverityInfo {
		t.Errorf("Expected optimize-write advisory, got %v", got)
	}
}

func TestValidate_AdvisoriesNeverBlock(t *testing.T) {
	g := build(
		[]nodeSpec{oledbSource("src"), sortNode("sort"), {"db", "OLEDBDestination", model.KindDestination, map[string]string{"connection": "dw", "tableName": "t"}}},
		[2]string{"src", "sort"}, [2]string{"sort", "db"},
	)

	results := Validate(g, model.PlatformSSIS)
	Apply(g, results)

	for _, rule := range []string{"generic-name", "auditing", "sort-at-source", "fast-load"} {
		if len(byRule(results, rule)) == 0 {
			t.Errorf("Expected advisory %s", rule)
		}
	}
	for _, n := range g.Nodes {
		if n.HasError {
			t.Errorf("Advisories must not set HasError on %s: %s", n.ID, n.ErrorMessage)
		}
	}
}

func TestValidate_UnknownPlatformAndCategory(t *testing.T) {
	g := build([]nodeSpec{{"x", "Teleport", model.KindTransformation, nil}})

	results := Validate(g, "airflow")
	if len(results) != 1 || results[0].Rule != "unknown-platform" {
		t.Errorf("Expected single unknown-platform result, got %v", results)
	}

	results = Validate(g, model.PlatformSSIS)
	if got := byRule(results, "unknown-category"); len(got) != 1 || got[0].Severity != model.SeverityWarning {
		t.Errorf("Expected unknown-category warning, got %v", got)
	}
}

func TestApply(t *testing.T) {
	g := build(
		[]nodeSpec{
			oledbSource("s"),
			{"t", "DerivedColumn", model.KindTransformation, nil},
			{"u", "DataConversion", model.KindTransformation, nil},
			flatFileDest("d"),
		},
		[2]string{"s", "t"}, [2]string{"t", "u"}, [2]string{"u", "t"}, [2]string{"u", "d"}, [2]string{"d", "nowhere"},
	)

	results := Validate(g, model.PlatformSSIS)
	Apply(g, results)

	tNode, _ := g.Node("t")
	if !tNode.HasError || !strings.Contains(tNode.ErrorMessage, "expression") || !strings.Contains(tNode.ErrorMessage, "Cycle") {
		t.Errorf("Expected t to carry both its schema and cycle errors, got %q", tNode.ErrorMessage)
	}
	uNode, _ := g.Node("u")
	if !uNode.HasError {
		t.Errorf("Expected cycle member u to be marked as failing")
	}
	sNode, _ := g.Node("s")
	if sNode.HasError {
		t.Errorf("Expected s to be clean, got %q", sNode.ErrorMessage)
	}

	dangling, _ := g.Edge("d->nowhere")
	if dangling.IsValid || dangling.Validation == nil || dangling.Validation.Rule != ruleDanglingEdge {
		t.Errorf("Expected dangling edge to be invalid with its result attached, got %+v", dangling)
	}
	ok, _ := g.Edge("s->t")
	if !ok.IsValid || ok.Validation != nil {
		t.Errorf("Expected s->t to be valid, got %+v", ok)
	}

	// Fixing the graph clears the flags on the next pass.
	g.RemoveEdge("u->t")
	g.RemoveEdge("d->nowhere")
	g.UpdateProperties("t", map[string]string{"expression": "a+b"})
	g.UpdateProperties("u", map[string]string{"columns": "a"})
	Apply(g, Validate(g, model.PlatformSSIS))

	for _, n := range g.Nodes {
		if n.HasError {
			t.Errorf("Expected %s to be clean after fixing, got %q", n.ID, n.ErrorMessage)
		}
	}
}
