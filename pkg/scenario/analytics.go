package scenario

import (
	"context"
	"strconv"

	"github.com/shiftsuite/shiftboard/pkg/dataset"
	"github.com/shiftsuite/shiftboard/pkg/slotinfo"
)

// summaryColumns are the aggregate columns the analysis engine appends to
// heat tables alongside the per-date staffing counts.
var summaryColumns = []string{"need", "upper", "staff", "lack", "excess"}

// HeatStaff returns the staffing heat table with the aggregate summary
// columns removed, leaving one column per date.
func (s *Scenario) HeatStaff(ctx context.Context) (*dataset.Table, error) {
	heat, err := s.Table(ctx, dataset.KindHeatAll)
	if err != nil {
		return nil, err
	}
	return heat.DropColumns(summaryColumns...), nil
}

// RatioFrame returns staff-to-need ratios per slot and date, clipped to
// [0, 2]. Slots with zero or missing need map to 0 rather than infinity.
func (s *Scenario) RatioFrame(ctx context.Context) (*dataset.Table, error) {
	heat, err := s.Table(ctx, dataset.KindHeatAll)
	if err != nil {
		return nil, err
	}
	needCol := heat.ColumnIndex("need")
	staff := heat.DropColumns(summaryColumns...)
	if needCol < 0 || staff.Empty() {
		return dataset.NewTable(nil, nil, nil)
	}

	columns := staff.Columns()
	index := staff.Index()
	cells := make([][]string, staff.NumRows())
	for row := 0; row < staff.NumRows(); row++ {
		need, _ := heat.Float(row, needCol)
		line := make([]string, len(columns))
		for col := range columns {
			ratio := 0.0
			if need > 0 {
				if v, ok := staff.Float(row, col); ok {
					ratio = clamp(v/need, 0, 2)
				}
			}
			line[col] = strconv.FormatFloat(ratio, 'g', -1, 64)
		}
		cells[row] = line
	}
	return dataset.NewTable(columns, index, cells)
}

// HeatmapScale describes the color range for rendering a heat table.
type HeatmapScale struct {
	ZMin float64 `json:"zmin"`
	ZMax float64 `json:"zmax"`
	P90  float64 `json:"p90"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// HeatmapScale computes the render scale for a heat dataset from the
// quantiles of its positive cells. ZMax is the 95th percentile clamped to
// [10, 50] so an outlier-free table still gets a usable range.
func (s *Scenario) HeatmapScale(ctx context.Context, kind dataset.Kind) (HeatmapScale, error) {
	t, err := s.Table(ctx, kind)
	if err != nil {
		return HeatmapScale{}, err
	}
	scale := HeatmapScale{ZMax: 10}
	if p90, ok := t.PositiveQuantile(0.90); ok {
		scale.P90 = p90
	}
	if p95, ok := t.PositiveQuantile(0.95); ok {
		scale.P95 = p95
		scale.ZMax = clamp(p95, 10, 50)
	}
	if p99, ok := t.PositiveQuantile(0.99); ok {
		scale.P99 = p99
	}
	return scale, nil
}

// LackHours returns the total shortage hours across all roles. A missing
// shortage_role dataset or lack_h column counts as zero.
func (s *Scenario) LackHours(ctx context.Context) (float64, error) {
	t, err := s.Table(ctx, dataset.KindShortageRole)
	if err != nil {
		return 0, err
	}
	sum, ok := t.SumColumn("lack_h")
	if !ok {
		return 0, nil
	}
	return sum, nil
}

// JainIndex returns the fairness Jain index from the fairness metadata
// sheet. The second return is false when the metric is absent.
func (s *Scenario) JainIndex(ctx context.Context) (float64, bool, error) {
	t, err := s.Table(ctx, dataset.KindFairnessMeta)
	if err != nil {
		return 0, false, err
	}
	raw, ok := t.Lookup("metric", "jain_index", "value")
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, nil
	}
	return v, true, nil
}

// ShortageTimeDates returns every column of the shortage_time table in
// table order, shortage or not. The dashboard's date picker lists them all.
func (s *Scenario) ShortageTimeDates(ctx context.Context) ([]string, error) {
	t, err := s.Table(ctx, dataset.KindShortageTime)
	if err != nil {
		return nil, err
	}
	return t.Columns(), nil
}

// ShortageRatioDates returns every column of the shortage_ratio table in
// table order.
func (s *Scenario) ShortageRatioDates(ctx context.Context) ([]string, error) {
	t, err := s.Table(ctx, dataset.KindShortageRatio)
	if err != nil {
		return nil, err
	}
	return t.Columns(), nil
}

// SlotLackHours converts the shortage_time table's per-slot lack counts
// into person-hours using the slot width carried on ctx. A 30-minute slot
// counts half an hour per missing person.
func (s *Scenario) SlotLackHours(ctx context.Context) (float64, error) {
	t, err := s.Table(ctx, dataset.KindShortageTime)
	if err != nil {
		return 0, err
	}
	info, _ := slotinfo.From(ctx)
	var slots float64
	for _, col := range t.DropColumns(summaryColumns...).Columns() {
		if sum, ok := t.SumColumn(col); ok {
			slots += sum
		}
	}
	return slots * info.SlotHours, nil
}

// ShortageDates returns only the shortage_time dates with a positive lack
// total. This feeds the shortage-day KPI, not the date pickers.
func (s *Scenario) ShortageDates(ctx context.Context) ([]string, error) {
	t, err := s.Table(ctx, dataset.KindShortageTime)
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, col := range t.DropColumns(summaryColumns...).Columns() {
		if sum, ok := t.SumColumn(col); ok && sum > 0 {
			dates = append(dates, col)
		}
	}
	return dates, nil
}

// KPI is the headline number block for a scenario.
type KPI struct {
	LackHours    float64  `json:"lack_hours"`
	JainIndex    *float64 `json:"jain_index,omitempty"`
	ShortageDays int      `json:"shortage_days"`
}

// KPI aggregates the scenario's headline metrics.
func (s *Scenario) KPI(ctx context.Context) (KPI, error) {
	lack, err := s.LackHours(ctx)
	if err != nil {
		return KPI{}, err
	}
	kpi := KPI{LackHours: lack}

	if jain, ok, err := s.JainIndex(ctx); err != nil {
		return KPI{}, err
	} else if ok {
		kpi.JainIndex = &jain
	}

	dates, err := s.ShortageDates(ctx)
	if err != nil {
		return KPI{}, err
	}
	kpi.ShortageDays = len(dates)
	return kpi, nil
}

// ColumnTotals sums each column of a dataset, skipping columns without a
// single parseable numeric cell.
func (s *Scenario) ColumnTotals(ctx context.Context, kind dataset.Kind) (map[string]float64, error) {
	t, err := s.Table(ctx, kind)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	for _, col := range t.Columns() {
		if sum, ok := t.SumColumn(col); ok {
			totals[col] = sum
		}
	}
	return totals, nil
}

// ForecastSummary totals the demand forecast per column. Scenarios without
// forecast output return an empty map.
func (s *Scenario) ForecastSummary(ctx context.Context) (map[string]float64, error) {
	return s.ColumnTotals(ctx, dataset.KindForecast)
}

// CostSummary totals the cost-benefit comparison per column.
func (s *Scenario) CostSummary(ctx context.Context) (map[string]float64, error) {
	return s.ColumnTotals(ctx, dataset.KindCostBenefit)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
