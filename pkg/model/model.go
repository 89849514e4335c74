package model

import "fmt"

// Kind is the structural role of a node in a pipeline
type Kind string

const (
	KindSource          Kind = "source"
	KindTransformation  Kind = "transformation"
	KindDestination     Kind = "destination"
	KindControlFlowTask Kind = "control-flow-task"
	KindDataMovement    Kind = "data-movement"
)

// Valid reports whether k is one of the known node kinds
func (k Kind) Valid() bool {
	switch k {
	case KindSource, KindTransformation, KindDestination, KindControlFlowTask, KindDataMovement:
		return true
	}
	return false
}

// Platform selects the rule table, cost model and catalog a pipeline is checked against
type Platform string

const (
	PlatformSSIS       Platform = "ssis"       // SQL Server Integration Services data flow
	PlatformADF        Platform = "adf"        // Azure Data Factory pipeline
	PlatformDatabricks Platform = "databricks" // Spark dataframe pipeline
)

// Platforms lists every supported platform in a stable order
func Platforms() []Platform {
	return []Platform{PlatformSSIS, PlatformADF, PlatformDatabricks}
}

// ParsePlatform converts a user supplied tag into a Platform
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// Branch selects one of the logical outputs of a control-flow node
type Branch string

const (
	BranchDefault   Branch = ""
	BranchSucceeded Branch = "Succeeded"
	BranchFailed    Branch = "Failed"
	BranchCompleted Branch = "Completed"
	BranchSkipped   Branch = "Skipped"
)

// Valid reports whether b is a known branch tag
func (b Branch) Valid() bool {
	switch b {
	case BranchDefault, BranchSucceeded, BranchFailed, BranchCompleted, BranchSkipped:
		return true
	}
	return false
}

// Severity of a validation result. Only SeverityError blocks.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationResult is a single diagnostic for a node or an edge
type ValidationResult struct {
	ID              string   `json:"id"`   // Node or edge ID the result is attached to
	Rule            string   `json:"rule"` // Stable rule code, e.g. "cycle", "dangling-edge"
	IsValid         bool     `json:"isValid"`
	Severity        Severity `json:"severity"`
	Message         string   `json:"message"`
	Suggestion      string   `json:"suggestion,omitempty"`
	AffectedNodeIDs []string `json:"affectedNodeIds,omitempty"`
}

// Blocking reports whether the result prevents the graph from being treated as runnable
func (r ValidationResult) Blocking() bool {
	return r.Severity == SeverityError
}

// HasBlocking reports whether any result in the list has error severity
func HasBlocking(results []ValidationResult) bool {
	for _, r := range results {
		if r.Blocking() {
			return true
		}
	}
	return false
}

// MemoryImpact classifies how much memory a node holds while running
type MemoryImpact string

const (
	MemoryLow    MemoryImpact = "low"
	MemoryMedium MemoryImpact = "medium"
	MemoryHigh   MemoryImpact = "high"
)

// NodeMetrics is the simulated cost of a single node
type NodeMetrics struct {
	DurationSeconds float64      `json:"duration"`
	RowsProcessed   int64        `json:"rowsProcessed"`
	MemoryImpact    MemoryImpact `json:"memoryImpact"`
	IsBottleneck    bool         `json:"isBottleneck"`
	Cost            float64      `json:"cost,omitempty"`
}

// SimulationResult is the outcome of one simulated run of a pipeline
type SimulationResult struct {
	Platform     Platform               `json:"platform"`
	Model        string                 `json:"model"` // "streaming" or "sequential"
	NominalRows  int64                  `json:"nominalRows"`
	TotalSeconds float64                `json:"totalDuration"`
	MemoryMB     float64                `json:"memoryMb"`
	Cost         float64                `json:"cost,omitempty"`
	Currency     string                 `json:"currency,omitempty"`
	Bottleneck   string                 `json:"bottleneck,omitempty"`
	Nodes        map[string]NodeMetrics `json:"nodes"`
}

// CatalogEntry is a read-only palette entry used to pre-fill new nodes
type CatalogEntry struct {
	Kind              Kind              `json:"kind"`
	Category          string            `json:"category"`
	DisplayName       string            `json:"displayName"`
	DefaultProperties map[string]string `json:"defaultProperties,omitempty"`
	DataShape         []string          `json:"dataShape,omitempty"` // Column names the node emits
}
