package validation

import (
	"fmt"

	"github.com/ritzau/pipegraph/pkg/model"
)

// Databricks: Spark dataframe pipelines. A source dataframe may feed several
// branches; transformations otherwise behave like the streaming data flow.
func init() {
	register(&RuleSet{
		Platform: model.PlatformDatabricks,
		Kinds:    []model.Kind{model.KindSource, model.KindTransformation, model.KindDestination},
		DefaultDegree: func(k model.Kind) Degree {
			switch k {
			case model.KindSource:
				return Degree{MinIn: 0, MaxIn: 0, MinOut: 0, MaxOut: Unbounded}
			case model.KindDestination:
				return Degree{MinIn: 0, MaxIn: 1, MinOut: 0, MaxOut: 0}
			default:
				return Degree{MinIn: 1, MaxIn: 1, MinOut: 0, MaxOut: 1}
			}
		},
		IsSink:     isKind(model.KindDestination),
		Branches:   func(b model.Branch) bool { return b == model.BranchDefault },
		Categories: databricksCategories,
		Pairs: []PairRule{
			{
				Rule:     "untyped-to-typed",
				Severity: model.SeverityError,
				Match: func(_ *model.Edge, src, dst *model.Node) bool {
					return src.Category == "CSVSource" && dst.Category == "JDBCSink" && !isTrue(src.Property("inferSchema"))
				},
				Message: func(src, dst *model.Node) string {
					return fmt.Sprintf("%s reads every column as string; %s needs typed columns", src.ID, dst.ID)
				},
				Suggestion: func(src, dst *model.Node) string {
					return fmt.Sprintf("Insert a Cast step between %s and %s, or set inferSchema=true", src.ID, dst.ID)
				},
			},
		},
		Advisories: []GraphRule{
			adviseGenericNames(model.KindSource, model.KindDestination),
			databricksAdviseGlobalSort,
			databricksAdviseOptimizeWrite,
		},
	})
}

var databricksCategories = map[string]CategoryRule{
	"DeltaSource": {
		Kind:        model.KindSource,
		DisplayName: "Delta Table",
		Check:       requireOneOf("table", "path"),
	},
	"ParquetSource": {
		Kind:        model.KindSource,
		DisplayName: "Parquet Files",
		Schema:      Schema{Required: []string{"path"}},
	},
	"CSVSource": {
		Kind:        model.KindSource,
		DisplayName: "CSV Files",
		Defaults:    map[string]string{"header": "true"},
		Schema:      Schema{Required: []string{"path"}},
	},
	"JDBCSource": {
		Kind:        model.KindSource,
		DisplayName: "JDBC Source",
		Schema: Schema{
			Required: []string{"url", "table"},
			Numeric:  []NumericField{{Key: "numPartitions", Min: 1}},
		},
	},

	"Filter": {
		Kind:        model.KindTransformation,
		DisplayName: "Filter",
		Schema:      Schema{Required: []string{"condition"}},
	},
	"Select": {
		Kind:        model.KindTransformation,
		DisplayName: "Select",
		Schema:      Schema{Required: []string{"columns"}},
	},
	"WithColumn": {
		Kind:        model.KindTransformation,
		DisplayName: "With Column",
		Schema:      Schema{Required: []string{"columnName", "expression"}},
	},
	"Cast": {
		Kind:        model.KindTransformation,
		DisplayName: "Cast",
		Schema:      Schema{Required: []string{"columns"}},
	},
	"Join": {
		Kind:        model.KindTransformation,
		DisplayName: "Join",
		Defaults:    map[string]string{"how": "inner"},
		Degree:      degree(2, 2, 0, 1),
		Schema:      Schema{Required: []string{"joinKey"}},
	},
	"Union": {
		Kind:        model.KindTransformation,
		DisplayName: "Union",
		Degree:      degree(1, Unbounded, 0, 1),
		Check:       requireUnionInputs,
	},
	"GroupBy": {
		Kind:        model.KindTransformation,
		DisplayName: "Group By",
		Schema:      Schema{Required: []string{"groupBy", "aggregations"}},
	},
	"Window": {
		Kind:        model.KindTransformation,
		DisplayName: "Window",
		Schema:      Schema{Required: []string{"partitionBy", "orderBy"}},
	},
	"OrderBy": {
		Kind:        model.KindTransformation,
		DisplayName: "Order By",
		Schema:      Schema{Required: []string{"orderBy"}},
	},
	"Deduplicate": {
		Kind:        model.KindTransformation,
		DisplayName: "Drop Duplicates",
	},
	"Repartition": {
		Kind:        model.KindTransformation,
		DisplayName: "Repartition",
		Schema: Schema{
			Required: []string{"numPartitions"},
			Numeric:  []NumericField{{Key: "numPartitions", Min: 1}},
		},
	},
	"Cache": {
		Kind:        model.KindTransformation,
		DisplayName: "Cache",
		Degree:      degree(1, 1, 0, Unbounded),
	},

	"DeltaSink": {
		Kind:        model.KindDestination,
		DisplayName: "Delta Table Sink",
		Defaults:    map[string]string{"mode": "append"},
		Check:       requireOneOf("table", "path"),
	},
	"ParquetSink": {
		Kind:        model.KindDestination,
		DisplayName: "Parquet Sink",
		Schema:      Schema{Required: []string{"path"}},
	},
	"JDBCSink": {
		Kind:        model.KindDestination,
		DisplayName: "JDBC Sink",
		Schema: Schema{
			Required: []string{"url", "table"},
			Numeric:  []NumericField{{Key: "batchSize", Min: 1}},
		},
	},
}

// databricksAdviseGlobalSort warns about a total ordering right before a write
func databricksAdviseGlobalSort(c *Context) {
	for _, n := range c.Graph.Nodes {
		if n.Category != "OrderBy" {
			continue
		}
		for _, out := range c.Outputs(n) {
			if out.Kind == model.KindDestination {
				c.Warn(n.ID, "global-sort",
					fmt.Sprintf("%s shuffles the whole dataset into one ordering before %s", c.Label(n), c.Label(out)),
					"Drop the sort, or use sortWithinPartitions / Z-ordering on the table")
				break
			}
		}
	}
}

// databricksAdviseOptimizeWrite suggests the Delta optimized writes flag
func databricksAdviseOptimizeWrite(c *Context) {
	for _, n := range c.Graph.Nodes {
		if n.Category == "DeltaSink" && !isTrue(n.Property("optimizeWrite")) {
			c.Info(n.ID, "optimize-write",
				fmt.Sprintf("%s writes without optimized writes", c.Label(n)),
				"Set optimizeWrite=true to avoid many small files")
		}
	}
}
