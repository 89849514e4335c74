package validation

import (
	"fmt"

	"github.com/ritzau/pipegraph/pkg/model"
)

// Azure Data Factory: activities chained by dependency conditions. Any number
// of activities may depend on one another; the branch tag is the condition.
func init() {
	register(&RuleSet{
		Platform: model.PlatformADF,
		Kinds:    []model.Kind{model.KindControlFlowTask, model.KindDataMovement, model.KindTransformation},
		DefaultDegree: func(k model.Kind) Degree {
			return Degree{MinIn: 0, MaxIn: Unbounded, MinOut: 0, MaxOut: Unbounded}
		},
		IsSink: func(n *model.Node) bool {
			return n.Kind == model.KindDataMovement || n.Category == "DataFlow"
		},
		Branches:   func(b model.Branch) bool { return b.Valid() },
		Categories: adfCategories,
		Pairs: []PairRule{
			{
				Rule:     "variable-overwrite",
				Severity: model.SeverityWarning,
				Match: func(e *model.Edge, src, dst *model.Node) bool {
					return src.Category == "SetVariable" && dst.Category == "SetVariable" &&
						src.Property("variableName") != "" &&
						src.Property("variableName") == dst.Property("variableName")
				},
				Message: func(src, dst *model.Node) string {
					return fmt.Sprintf("%s overwrites variable '%s' set by %s", dst.ID, dst.Property("variableName"), src.ID)
				},
				Suggestion: func(_, _ *model.Node) string {
					return "Merge the two Set Variable activities or use Append Variable"
				},
			},
			{
				Rule:     "failure-copy",
				Severity: model.SeverityInfo,
				Match: func(e *model.Edge, src, dst *model.Node) bool {
					return e.Branch == model.BranchFailed && dst.Kind == model.KindDataMovement
				},
				Message: func(src, dst *model.Node) string {
					return fmt.Sprintf("%s only runs when %s fails", dst.ID, src.ID)
				},
			},
		},
		Advisories: []GraphRule{
			adviseGenericNames(model.KindDataMovement, model.KindTransformation),
			adfAdviseFailurePath,
			adfAdviseSequentialForEach,
		},
	})
}

var adfCategories = map[string]CategoryRule{
	"CopyData": {
		Kind:        model.KindDataMovement,
		DisplayName: "Copy data",
		Defaults:    map[string]string{"dataIntegrationUnits": "4"},
		Schema: Schema{
			Required: []string{"source", "sink"},
			Numeric: []NumericField{
				{Key: "dataIntegrationUnits", Min: 2, Max: 256, Bounded: true},
				{Key: "parallelCopies", Min: 1},
			},
		},
	},
	"DataFlow": {
		Kind:        model.KindTransformation,
		DisplayName: "Data flow",
		Defaults:    map[string]string{"coreCount": "8", "computeType": "General"},
		Schema: Schema{
			Required: []string{"dataFlowName"},
			Numeric:  []NumericField{{Key: "coreCount", Min: 8}},
		},
	},
	"WebActivity": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Web",
		Defaults:    map[string]string{"method": "GET"},
		Schema: Schema{
			Required: []string{"url", "method"},
			Numeric:  []NumericField{{Key: "timeoutSeconds", Min: 1}},
		},
		Check: requireHTTPURL("url"),
	},
	"SetVariable": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Set variable",
		Schema:      Schema{Required: []string{"variableName"}},
	},
	"AppendVariable": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Append variable",
		Schema:      Schema{Required: []string{"variableName", "value"}},
	},
	"Wait": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Wait",
		Defaults:    map[string]string{"waitTimeInSeconds": "1"},
		Schema:      Schema{Numeric: []NumericField{{Key: "waitTimeInSeconds", Min: 0}}},
	},
	"IfCondition": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "If Condition",
		Schema:      Schema{Required: []string{"expression"}},
	},
	"ForEach": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "ForEach",
		Defaults:    map[string]string{"isSequential": "false", "batchCount": "20"},
		Schema: Schema{
			Required: []string{"items"},
			Numeric:  []NumericField{{Key: "batchCount", Min: 1, Max: 50, Bounded: true}},
		},
	},
	"Until": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Until",
		Schema:      Schema{Required: []string{"expression"}},
	},
	"ExecutePipeline": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Execute Pipeline",
		Defaults:    map[string]string{"waitOnCompletion": "true"},
		Schema:      Schema{Required: []string{"pipelineName"}},
	},
	"Lookup": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Lookup",
		Schema:      Schema{Required: []string{"dataset"}},
	},
	"GetMetadata": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Get Metadata",
		Schema:      Schema{Required: []string{"dataset"}},
	},
	"StoredProcedure": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Stored procedure",
		Schema:      Schema{Required: []string{"linkedService", "storedProcedureName"}},
	},
	"Notebook": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Notebook",
		Schema:      Schema{Required: []string{"notebookPath"}},
	},
	"Fail": {
		Kind:        model.KindControlFlowTask,
		DisplayName: "Fail",
		Degree:      degree(0, Unbounded, 0, 0),
		Schema:      Schema{Required: []string{"message", "errorCode"}},
	},
}

// adfAdviseFailurePath suggests handling failures when no activity listens on a Failed branch
func adfAdviseFailurePath(c *Context) {
	if len(c.Graph.Nodes) < 2 {
		return
	}
	for _, e := range c.Graph.Edges {
		if e.Branch == model.BranchFailed {
			return
		}
	}
	c.Info(c.Graph.Nodes[0].ID, "no-failure-path",
		"No activity runs on a Failed branch: failures will only surface in the monitor",
		"Add a Fail or alerting Web activity on the Failed branch of critical steps")
}

// adfAdviseSequentialForEach points out ForEach loops forced to run one item at a time
func adfAdviseSequentialForEach(c *Context) {
	for _, n := range c.Graph.Nodes {
		if n.Category == "ForEach" && isTrue(n.Property("isSequential")) {
			c.Info(n.ID, "sequential-foreach",
				fmt.Sprintf("%s processes items one at a time", c.Label(n)),
				"Set isSequential=false and tune batchCount if iterations are independent")
		}
	}
}
