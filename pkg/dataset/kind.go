package dataset

import "strings"

// Kind identifies one dataset within a scenario.
type Kind string

// Dataset kinds produced by the analysis engine. The string value doubles as
// the API path segment.
const (
	KindHeatAll                Kind = "heat_all"
	KindShortageTime           Kind = "shortage_time"
	KindShortageRatio          Kind = "shortage_ratio"
	KindShortageRole           Kind = "shortage_role"
	KindShortageEmployment     Kind = "shortage_employment"
	KindShortageFreq           Kind = "shortage_freq"
	KindExcessTime             Kind = "excess_time"
	KindFairnessBefore         Kind = "fairness_before"
	KindFairnessAfter          Kind = "fairness_after"
	KindFairnessMeta           Kind = "fairness_meta"
	KindFatigueScore           Kind = "fatigue_score"
	KindForecast               Kind = "forecast"
	KindDemandSeries           Kind = "demand_series"
	KindHirePlan               Kind = "hire_plan"
	KindCostBenefit            Kind = "cost_benefit"
	KindLeaveAnalysis          Kind = "leave_analysis"
	KindLeaveRatioBreakdown    Kind = "leave_ratio_breakdown"
	KindStaffStats             Kind = "staff_stats"
	KindStatsSummary           Kind = "stats_summary"
	KindBlueprintScored        Kind = "blueprint_scored"
	KindMindReader             Kind = "mind_reader"
	KindWorkPatterns           Kind = "work_patterns"
	KindDailySummary           Kind = "daily_summary"
	KindConcentrationRequested Kind = "concentration_requested"
	KindOptimizationScore      Kind = "optimization_score"
	KindGapSummary             Kind = "gap_summary"
	KindGapHeatmap             Kind = "gap_heatmap"
)

// kindSpec describes where a dataset kind lives on disk.
type kindSpec struct {
	// bases are candidate file names without extension, tried in order.
	// Matching is case-insensitive on the base name.
	bases []string

	// sheet selects a specific XLSX sheet. Empty means the first sheet.
	sheet string
}

var kindSpecs = map[Kind]kindSpec{
	KindHeatAll:                {bases: []string{"heat_ALL"}},
	KindShortageTime:           {bases: []string{"shortage_time"}},
	KindShortageRatio:          {bases: []string{"shortage_ratio"}},
	KindShortageRole:           {bases: []string{"shortage_role", "shortage_role_summary"}},
	KindShortageEmployment:     {bases: []string{"shortage_employment"}},
	KindShortageFreq:           {bases: []string{"shortage_freq"}},
	KindExcessTime:             {bases: []string{"excess_time"}},
	KindFairnessBefore:         {bases: []string{"fairness_before"}},
	KindFairnessAfter:          {bases: []string{"fairness_after"}},
	KindFairnessMeta:           {bases: []string{"fairness_before"}, sheet: "meta_summary"},
	KindFatigueScore:           {bases: []string{"fatigue_score"}},
	KindForecast:               {bases: []string{"forecast", "forecast_summary"}},
	KindDemandSeries:           {bases: []string{"demand_series"}},
	KindHirePlan:               {bases: []string{"hire_plan"}},
	KindCostBenefit:            {bases: []string{"cost_benefit"}},
	KindLeaveAnalysis:          {bases: []string{"leave_analysis"}},
	KindLeaveRatioBreakdown:    {bases: []string{"leave_ratio_breakdown"}},
	KindStaffStats:             {bases: []string{"staff_stats"}},
	KindStatsSummary:           {bases: []string{"stats", "stats_summary"}},
	KindBlueprintScored:        {bases: []string{"blueprint_scored", "blueprint"}},
	KindMindReader:             {bases: []string{"mind_reader"}},
	KindWorkPatterns:           {bases: []string{"work_patterns"}},
	KindDailySummary:           {bases: []string{"daily_summary"}},
	KindConcentrationRequested: {bases: []string{"concentration_requested"}},
	KindOptimizationScore:      {bases: []string{"optimization_score"}},
	KindGapSummary:             {bases: []string{"gap_summary"}},
	KindGapHeatmap:             {bases: []string{"gap_heatmap"}},
}

// Kinds returns all dataset kinds in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindHeatAll,
		KindShortageTime,
		KindShortageRatio,
		KindShortageRole,
		KindShortageEmployment,
		KindShortageFreq,
		KindExcessTime,
		KindFairnessBefore,
		KindFairnessAfter,
		KindFairnessMeta,
		KindFatigueScore,
		KindForecast,
		KindDemandSeries,
		KindHirePlan,
		KindCostBenefit,
		KindLeaveAnalysis,
		KindLeaveRatioBreakdown,
		KindStaffStats,
		KindStatsSummary,
		KindBlueprintScored,
		KindMindReader,
		KindWorkPatterns,
		KindDailySummary,
		KindConcentrationRequested,
		KindOptimizationScore,
		KindGapSummary,
		KindGapHeatmap,
	}
}

// Valid reports whether k is a known dataset kind.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Sheet returns the XLSX sheet this kind reads from, if any.
func (k Kind) Sheet() string {
	return kindSpecs[k].sheet
}

// ParseKind normalizes an API path segment into a Kind.
// Hyphens are accepted in place of underscores.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", false
	}
	return k, true
}
