package validation

import (
	"fmt"

	"github.com/ritzau/pipegraph/pkg/model"
)

// SSIS data flow: rows stream from sources through transformations into
// destinations. A Failed branch is a component's error output.
func init() {
	register(&RuleSet{
		Platform: model.PlatformSSIS,
		Kinds:    []model.Kind{model.KindSource, model.KindTransformation, model.KindDestination},
		DefaultDegree: func(k model.Kind) Degree {
			switch k {
			case model.KindSource:
				return Degree{MinIn: 0, MaxIn: 0, MinOut: 0, MaxOut: 1}
			case model.KindDestination:
				return Degree{MinIn: 0, MaxIn: 1, MinOut: 0, MaxOut: 0}
			default:
				return Degree{MinIn: 1, MaxIn: 1, MinOut: 0, MaxOut: 1}
			}
		},
		IsSink: isKind(model.KindDestination),
		Branches: func(b model.Branch) bool {
			return b == model.BranchDefault || b == model.BranchFailed
		},
		Categories: ssisCategories,
		Pairs: []PairRule{
			{
				Rule:     "untyped-to-typed",
				Severity: model.SeverityError,
				Match: func(_ *model.Edge, src, dst *model.Node) bool {
					return src.Category == "FlatFileSource" &&
						(dst.Category == "OLEDBDestination" || dst.Category == "SQLServerDestination")
				},
				Message: func(src, dst *model.Node) string {
					return fmt.Sprintf("%s produces untyped text columns that %s cannot load without conversion", src.ID, dst.ID)
				},
				Suggestion: func(src, dst *model.Node) string {
					return fmt.Sprintf("Insert a Data Conversion transformation between %s and %s", src.ID, dst.ID)
				},
			},
			{
				Rule:     "row-truncation",
				Severity: model.SeverityWarning,
				Match: func(_ *model.Edge, src, dst *model.Node) bool {
					return src.Category == "ExcelSource" && dst.Kind == model.KindDestination
				},
				Message: func(src, dst *model.Node) string {
					return fmt.Sprintf("%s reads at most 1,048,576 rows per sheet; larger extracts loaded into %s will be truncated", src.ID, dst.ID)
				},
				Suggestion: func(src, _ *model.Node) string {
					return fmt.Sprintf("Export the data behind %s to a flat file or database for large volumes", src.ID)
				},
			},
		},
		Advisories: []GraphRule{
			adviseGenericNames(model.KindSource, model.KindDestination),
			ssisAdviseRowCount,
			ssisAdviseSortAtSource,
			ssisAdviseFastLoad,
		},
	})
}

var ssisCategories = map[string]CategoryRule{
	"OLEDBSource": {
		Kind:        model.KindSource,
		DisplayName: "OLE DB Source",
		Defaults:    map[string]string{"accessMode": "table"},
		Schema:      Schema{Required: []string{"connection"}},
		Check:       markSortedAtSource,
	},
	"ADONetSource": {
		Kind:        model.KindSource,
		DisplayName: "ADO NET Source",
		Schema:      Schema{Required: []string{"connection"}},
		Check:       markSortedAtSource,
	},
	"FlatFileSource": {
		Kind:        model.KindSource,
		DisplayName: "Flat File Source",
		Defaults:    map[string]string{"delimiter": ","},
		Schema:      Schema{Required: []string{"filePath"}},
	},
	"ExcelSource": {
		Kind:        model.KindSource,
		DisplayName: "Excel Source",
		Schema:      Schema{Required: []string{"filePath", "sheetName"}},
	},

	"Sort": {
		Kind:        model.KindTransformation,
		DisplayName: "Sort",
		Schema: Schema{
			Required: []string{"sortKeys"},
			Numeric:  []NumericField{{Key: "maxThreads", Min: 1}},
		},
		Check: markSorted,
	},
	"Aggregate": {
		Kind:        model.KindTransformation,
		DisplayName: "Aggregate",
		Schema:      Schema{Required: []string{"groupBy"}},
	},
	"DerivedColumn": {
		Kind:        model.KindTransformation,
		DisplayName: "Derived Column",
		Defaults:    map[string]string{"columnName": "derived"},
		Schema:      Schema{Required: []string{"expression"}},
	},
	"DataConversion": {
		Kind:        model.KindTransformation,
		DisplayName: "Data Conversion",
		Schema:      Schema{Required: []string{"columns"}},
	},
	"ConditionalSplit": {
		Kind:        model.KindTransformation,
		DisplayName: "Conditional Split",
		Degree:      degree(1, 1, 0, Unbounded),
		Schema:      Schema{Required: []string{"condition"}},
	},
	"Multicast": {
		Kind:        model.KindTransformation,
		DisplayName: "Multicast",
		Degree:      degree(1, 1, 0, Unbounded),
	},
	"UnionAll": {
		Kind:        model.KindTransformation,
		DisplayName: "Union All",
		Degree:      degree(1, Unbounded, 0, 1),
		Check:       requireUnionInputs,
	},
	"Merge": {
		Kind:        model.KindTransformation,
		DisplayName: "Merge",
		Degree:      degree(2, 2, 0, 1),
		Check:       requireSortedInputs,
	},
	"MergeJoin": {
		Kind:        model.KindTransformation,
		DisplayName: "Merge Join",
		Defaults:    map[string]string{"joinType": "inner"},
		Degree:      degree(2, 2, 0, 1),
		Schema:      Schema{Required: []string{"joinKeys"}},
		Check:       requireSortedInputs,
	},
	"Lookup": {
		Kind:        model.KindTransformation,
		DisplayName: "Lookup",
		Defaults:    map[string]string{"cacheMode": "full"},
		Degree:      degree(1, 2, 0, 1),
		Schema: Schema{
			Required: []string{"joinKeys"},
			Numeric:  []NumericField{{Key: "cacheSizeMB", Min: 0}},
		},
		Check: requireLookupReference,
	},
	"RowCount": {
		Kind:        model.KindTransformation,
		DisplayName: "Row Count",
		Schema:      Schema{Required: []string{"variableName"}},
	},
	"ScriptComponent": {
		Kind:        model.KindTransformation,
		DisplayName: "Script Component",
		Defaults:    map[string]string{"language": "csharp"},
	},

	"OLEDBDestination": {
		Kind:        model.KindDestination,
		DisplayName: "OLE DB Destination",
		Defaults:    map[string]string{"fastLoad": "true"},
		Schema: Schema{
			Required: []string{"connection", "tableName"},
			Numeric:  []NumericField{{Key: "rowsPerBatch", Min: 0}, {Key: "maxInsertCommitSize", Min: 0}},
		},
	},
	"SQLServerDestination": {
		Kind:        model.KindDestination,
		DisplayName: "SQL Server Destination",
		Schema: Schema{
			Required: []string{"connection", "tableName"},
			Numeric:  []NumericField{{Key: "maxInsertCommitSize", Min: 0}},
		},
	},
	"FlatFileDestination": {
		Kind:        model.KindDestination,
		DisplayName: "Flat File Destination",
		Schema:      Schema{Required: []string{"filePath"}},
	},
	"ExcelDestination": {
		Kind:        model.KindDestination,
		DisplayName: "Excel Destination",
		Schema:      Schema{Required: []string{"filePath", "sheetName"}},
	},
}

// ssisAdviseRowCount suggests auditing row counts when a pipeline loads data
func ssisAdviseRowCount(c *Context) {
	if len(c.Graph.Nodes) < 3 || !hasKind(c.Graph, model.KindDestination) || hasCategory(c.Graph, "RowCount") {
		return
	}
	first := c.Graph.Nodes[0]
	c.Info(first.ID, "auditing",
		"No Row Count transformation: loaded row counts will not be audited",
		"Add a Row Count before each destination and log the variable")
}

// ssisAdviseSortAtSource points out Sorts that a database source could do for free
func ssisAdviseSortAtSource(c *Context) {
	for _, n := range c.Graph.Nodes {
		if n.Category != sortCategory {
			continue
		}
		for _, in := range c.Inputs(n) {
			if in.Category == "OLEDBSource" || in.Category == "ADONetSource" {
				c.Info(n.ID, "sort-at-source",
					fmt.Sprintf("%s is a blocking sort on database data", c.Label(n)),
					fmt.Sprintf("Use ORDER BY in %s and set isSorted on it instead", c.Label(in)))
			}
		}
	}
}

// ssisAdviseFastLoad warns about row-by-row inserts into OLE DB destinations
func ssisAdviseFastLoad(c *Context) {
	for _, n := range c.Graph.Nodes {
		if n.Category == "OLEDBDestination" && !isTrue(n.Property("fastLoad")) {
			c.Warn(n.ID, "fast-load",
				fmt.Sprintf("%s inserts rows one at a time", c.Label(n)),
				"Set fastLoad=true to use bulk inserts")
		}
	}
}
