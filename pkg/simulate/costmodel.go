package simulate

import (
	"math"
	"strconv"

	"github.com/ritzau/pipegraph/pkg/model"
)

// Duration models. They are selected per platform and never mixed.
const (
	ModelStreaming  = "streaming"  // critical path plus backpressure overhead
	ModelSequential = "sequential" // activities run one after another
)

// Growth describes how a blocking node's cost grows with the nominal row count
type Growth int

const (
	GrowthNone Growth = iota
	GrowthLog
	GrowthLinear
)

// Combine selects how the row counts of several inputs are merged
type Combine int

const (
	CombineMax Combine = iota // joins, lookups
	CombineSum                // unions
)

const (
	rowBytes         = 200 // average row width used for blocking buffers
	backpressure     = 0.10
	currencyUSD      = "USD"
	orchestrationFee = 0.001 // per activity run
	diuHourPrice     = 0.25
	vCoreHourPrice   = 0.274
	dbuPrice         = 0.40
)

var memoryByClass = map[model.MemoryImpact]float64{
	model.MemoryLow:    8,
	model.MemoryMedium: 64,
	model.MemoryHigh:   256,
}

// CostProfile is one row of a platform cost table
type CostProfile struct {
	Throughput   float64 // rows per second, 0 means the node does not process rows
	Memory       model.MemoryImpact
	Blocking     Growth
	RowFactor    float64 // output rows per input row, 0 keeps the count
	FixedSeconds float64 // startup or queueing overhead
	Combine      Combine
	DBU          float64 // Databricks units per worker hour

	// Tune adjusts the profile from node properties
	Tune func(n *model.Node, p CostProfile) CostProfile
}

// Price turns a node's simulated duration into money
type Price func(n *model.Node, p CostProfile, seconds float64) float64

// CostTable is the complete cost model for one platform
type CostTable struct {
	Platform model.Platform
	Model    string
	Profiles map[string]CostProfile
	ByKind   map[model.Kind]CostProfile
	Price    Price // nil for platforms without a cost estimate
}

func (t *CostTable) profile(n *model.Node) CostProfile {
	p, ok := t.Profiles[n.Category]
	if !ok {
		p = t.ByKind[n.Kind]
	}
	if p.Tune != nil {
		p = p.Tune(n, p)
	}
	return p
}

var costTables = map[model.Platform]*CostTable{
	model.PlatformSSIS:       ssisCosts,
	model.PlatformADF:        adfCosts,
	model.PlatformDatabricks: databricksCosts,
}

// Table returns the cost table for a platform
func Table(p model.Platform) (*CostTable, bool) {
	t, ok := costTables[p]
	return t, ok
}

// growthFactor is the multiplier a blocking node pays for the row count
func growthFactor(g Growth, rows float64) float64 {
	switch g {
	case GrowthLog:
		if rows <= 0 {
			return 1
		}
		return math.Max(1, 1+math.Log2(rows/10_000))
	case GrowthLinear:
		return 1 + rows/1_000_000
	}
	return 1
}

// numeric reads a finite, non-negative numeric property, falling back to def
func numeric(n *model.Node, key string, def float64) float64 {
	v, err := strconv.ParseFloat(n.Property(key), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// multiplier is numeric for sizes that scale throughput or price; zero falls
// back to def as well.
func multiplier(n *model.Node, key string, def float64) float64 {
	if v := numeric(n, key, def); v > 0 {
		return v
	}
	return def
}

var ssisCosts = &CostTable{
	Platform: model.PlatformSSIS,
	Model:    ModelStreaming,
	Profiles: map[string]CostProfile{
		"OLEDBSource":    {Throughput: 500_000, Memory: model.MemoryLow},
		"ADONetSource":   {Throughput: 300_000, Memory: model.MemoryLow},
		"FlatFileSource": {Throughput: 800_000, Memory: model.MemoryLow},
		"ExcelSource":    {Throughput: 50_000, Memory: model.MemoryMedium},

		"Sort":             {Throughput: 200_000, Memory: model.MemoryHigh, Blocking: GrowthLog},
		"Aggregate":        {Throughput: 300_000, Memory: model.MemoryHigh, Blocking: GrowthLinear, RowFactor: 0.1},
		"DerivedColumn":    {Throughput: 1_500_000, Memory: model.MemoryLow},
		"DataConversion":   {Throughput: 1_200_000, Memory: model.MemoryLow},
		"ConditionalSplit": {Throughput: 1_500_000, Memory: model.MemoryLow},
		"Multicast":        {Throughput: 2_000_000, Memory: model.MemoryLow},
		"UnionAll":         {Throughput: 1_500_000, Memory: model.MemoryLow, Combine: CombineSum},
		"Merge":            {Throughput: 800_000, Memory: model.MemoryMedium, Combine: CombineSum},
		"MergeJoin":        {Throughput: 400_000, Memory: model.MemoryMedium},
		"Lookup":           {Throughput: 600_000, Memory: model.MemoryMedium},
		"RowCount":         {Throughput: 3_000_000, Memory: model.MemoryLow},
		"ScriptComponent":  {Throughput: 100_000, Memory: model.MemoryMedium},

		"OLEDBDestination": {
			Throughput: 250_000,
			Memory:     model.MemoryLow,
			Tune: func(n *model.Node, p CostProfile) CostProfile {
				if n.Property("fastLoad") != "true" {
					p.Throughput = 5_000
				}
				return p
			},
		},
		"SQLServerDestination": {Throughput: 400_000, Memory: model.MemoryLow},
		"FlatFileDestination":  {Throughput: 700_000, Memory: model.MemoryLow},
		"ExcelDestination":     {Throughput: 40_000, Memory: model.MemoryMedium},
	},
	ByKind: map[model.Kind]CostProfile{
		model.KindSource:         {Throughput: 400_000, Memory: model.MemoryLow},
		model.KindTransformation: {Throughput: 1_000_000, Memory: model.MemoryLow},
		model.KindDestination:    {Throughput: 300_000, Memory: model.MemoryLow},
	},
}

// adfCopyTune scales copy throughput with integration units and parallel copies
func adfCopyTune(n *model.Node, p CostProfile) CostProfile {
	diu := multiplier(n, "dataIntegrationUnits", 4)
	parallel := multiplier(n, "parallelCopies", 4)
	p.Throughput *= diu * parallel
	return p
}

var adfCosts = &CostTable{
	Platform: model.PlatformADF,
	Model:    ModelSequential,
	Profiles: map[string]CostProfile{
		"CopyData": {Throughput: 5_000, Memory: model.MemoryMedium, FixedSeconds: 10, Tune: adfCopyTune},
		"DataFlow": {
			Throughput:   20_000,
			Memory:       model.MemoryHigh,
			FixedSeconds: 240, // cluster start-up
			Tune: func(n *model.Node, p CostProfile) CostProfile {
				p.Throughput *= multiplier(n, "coreCount", 8)
				return p
			},
		},
		"Wait": {
			Memory: model.MemoryLow,
			Tune: func(n *model.Node, p CostProfile) CostProfile {
				p.FixedSeconds = numeric(n, "waitTimeInSeconds", 1)
				return p
			},
		},
		"WebActivity":     {Memory: model.MemoryLow, FixedSeconds: 2},
		"SetVariable":     {Memory: model.MemoryLow, FixedSeconds: 1},
		"AppendVariable":  {Memory: model.MemoryLow, FixedSeconds: 1},
		"IfCondition":     {Memory: model.MemoryLow, FixedSeconds: 1},
		"ForEach":         {Memory: model.MemoryLow, FixedSeconds: 5},
		"Until":           {Memory: model.MemoryLow, FixedSeconds: 5},
		"ExecutePipeline": {Memory: model.MemoryLow, FixedSeconds: 15},
		"Lookup":          {Memory: model.MemoryLow, FixedSeconds: 6},
		"GetMetadata":     {Memory: model.MemoryLow, FixedSeconds: 4},
		"StoredProcedure": {Memory: model.MemoryLow, FixedSeconds: 8},
		"Notebook":        {Memory: model.MemoryMedium, FixedSeconds: 60},
		"Fail":            {Memory: model.MemoryLow},
	},
	ByKind: map[model.Kind]CostProfile{
		model.KindControlFlowTask: {Memory: model.MemoryLow, FixedSeconds: 1},
		model.KindDataMovement:    {Throughput: 5_000, Memory: model.MemoryMedium, FixedSeconds: 10, Tune: adfCopyTune},
		model.KindTransformation:  {Throughput: 20_000, Memory: model.MemoryHigh, FixedSeconds: 240},
	},
	Price: func(n *model.Node, p CostProfile, seconds float64) float64 {
		hours := seconds / 3600
		cost := orchestrationFee
		switch {
		case n.Category == "CopyData" || (n.Kind == model.KindDataMovement && n.Category != "DataFlow"):
			cost += multiplier(n, "dataIntegrationUnits", 4) * hours * diuHourPrice
		case n.Category == "DataFlow" || n.Kind == model.KindTransformation:
			cost += multiplier(n, "coreCount", 8) * hours * vCoreHourPrice
		}
		return cost
	},
}

// databricksWorkers scales throughput with the cluster size
func databricksWorkers(n *model.Node, p CostProfile) CostProfile {
	p.Throughput *= multiplier(n, "workers", 2) / 2
	return p
}

var databricksCosts = &CostTable{
	Platform: model.PlatformDatabricks,
	Model:    ModelStreaming,
	Profiles: map[string]CostProfile{
		"DeltaSource":   {Throughput: 2_000_000, Memory: model.MemoryLow, DBU: 0.75},
		"ParquetSource": {Throughput: 1_500_000, Memory: model.MemoryLow, DBU: 0.75},
		"CSVSource":     {Throughput: 400_000, Memory: model.MemoryLow, DBU: 0.75},
		"JDBCSource": {
			Throughput: 100_000,
			Memory:     model.MemoryLow,
			DBU:        0.75,
			Tune: func(n *model.Node, p CostProfile) CostProfile {
				p.Throughput *= multiplier(n, "numPartitions", 1)
				return p
			},
		},

		"Filter":      {Throughput: 5_000_000, Memory: model.MemoryLow, RowFactor: 0.5, DBU: 0.75},
		"Select":      {Throughput: 6_000_000, Memory: model.MemoryLow, DBU: 0.75},
		"WithColumn":  {Throughput: 5_000_000, Memory: model.MemoryLow, DBU: 0.75},
		"Cast":        {Throughput: 5_000_000, Memory: model.MemoryLow, DBU: 0.75},
		"Join":        {Throughput: 800_000, Memory: model.MemoryHigh, Blocking: GrowthLog, DBU: 1.5},
		"Union":       {Throughput: 6_000_000, Memory: model.MemoryLow, Combine: CombineSum, DBU: 0.75},
		"GroupBy":     {Throughput: 1_000_000, Memory: model.MemoryHigh, Blocking: GrowthLinear, RowFactor: 0.1, DBU: 1.5},
		"Window":      {Throughput: 700_000, Memory: model.MemoryHigh, Blocking: GrowthLog, DBU: 1.5},
		"OrderBy":     {Throughput: 600_000, Memory: model.MemoryHigh, Blocking: GrowthLog, DBU: 1.5},
		"Deduplicate": {Throughput: 900_000, Memory: model.MemoryMedium, Blocking: GrowthLinear, RowFactor: 0.9, DBU: 1.5},
		"Repartition": {Throughput: 1_200_000, Memory: model.MemoryMedium, DBU: 1},
		"Cache":       {Throughput: 3_000_000, Memory: model.MemoryHigh, DBU: 1},

		"DeltaSink":   {Throughput: 1_000_000, Memory: model.MemoryMedium, DBU: 1},
		"ParquetSink": {Throughput: 1_200_000, Memory: model.MemoryMedium, DBU: 1},
		"JDBCSink":    {Throughput: 80_000, Memory: model.MemoryLow, DBU: 0.75},
	},
	ByKind: map[model.Kind]CostProfile{
		model.KindSource:         {Throughput: 1_000_000, Memory: model.MemoryLow, DBU: 0.75},
		model.KindTransformation: {Throughput: 3_000_000, Memory: model.MemoryLow, DBU: 0.75},
		model.KindDestination:    {Throughput: 800_000, Memory: model.MemoryMedium, DBU: 1},
	},
	Price: func(n *model.Node, p CostProfile, seconds float64) float64 {
		return p.DBU * multiplier(n, "workers", 2) * seconds / 3600 * dbuPrice
	},
}

func init() {
	// Every Databricks step runs on the cluster, so its size applies throughout.
	for cat, p := range databricksCosts.Profiles {
		p.Tune = chainTune(p.Tune, databricksWorkers)
		databricksCosts.Profiles[cat] = p
	}
	for kind, p := range databricksCosts.ByKind {
		p.Tune = chainTune(p.Tune, databricksWorkers)
		databricksCosts.ByKind[kind] = p
	}
}

func chainTune(tunes ...func(*model.Node, CostProfile) CostProfile) func(*model.Node, CostProfile) CostProfile {
	return func(n *model.Node, p CostProfile) CostProfile {
		for _, tune := range tunes {
			if tune != nil {
				p = tune(n, p)
			}
		}
		return p
	}
}
