package results

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scylladb/argus-sub001/internal/model"
	"github.com/scylladb/argus-sub001/internal/store"
)

// ChartQuery narrows chart assembly to a sut_timestamp window.
type ChartQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// seriesColors is the palette cycled across datasets of a chart.
var seriesColors = []string{
	"rgba(54, 162, 235, 1)",
	"rgba(255, 159, 64, 1)",
	"rgba(75, 192, 192, 1)",
	"rgba(153, 102, 255, 1)",
	"rgba(255, 205, 86, 1)",
	"rgba(201, 203, 207, 1)",
}

const thresholdColor = "rgba(255, 99, 132, 1)"

// Charts assembles every renderable chart for a subject: one chart per
// (table, non-TEXT column) that has data points in the window. Tables are
// processed concurrently; output order follows the table metadata order.
func (s *Service) Charts(ctx context.Context, subjectID uuid.UUID, q ChartQuery) ([]model.Chart, error) {
	tables, err := s.store.ListTableMetadata(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	details, runOrder, err := s.runsDetails(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	perTable := make([][]model.Chart, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.chartWorkers)

	for i := range tables {
		g.Go(func() error {
			charts, err := s.tableCharts(gctx, &tables[i], details, runOrder, q)
			if err != nil {
				return err
			}
			perTable[i] = charts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var charts []model.Chart
	for _, tc := range perTable {
		charts = append(charts, tc...)
	}
	return charts, nil
}

func (s *Service) runsDetails(ctx context.Context, subjectID uuid.UUID) (model.RunsDetails, []uuid.UUID, error) {
	runs, err := s.store.ListRuns(ctx, subjectID)
	if err != nil {
		return model.RunsDetails{}, nil, err
	}
	details := model.RunsDetails{Packages: make(map[uuid.UUID][]model.PackageVersion, len(runs))}
	order := make([]uuid.UUID, 0, len(runs))
	for _, run := range runs {
		if run.Ignored {
			details.Ignored = append(details.Ignored, run.ID)
			continue
		}
		details.Packages[run.ID] = run.Packages
		order = append(order, run.ID)
	}
	return details, order, nil
}

func (s *Service) tableCharts(ctx context.Context, meta *model.TableMetadata, details model.RunsDetails, runOrder []uuid.UUID, q ChartQuery) ([]model.Chart, error) {
	points, err := s.store.ListDataPoints(ctx, meta.SubjectID, meta.Name, store.DataFilter{StartDate: q.StartDate, EndDate: q.EndDate})
	if err != nil {
		return nil, err
	}
	ignored := details.IgnoredSet()
	kept := points[:0]
	for _, p := range points {
		if !ignored[p.RunID] {
			kept = append(kept, p)
		}
	}

	ledger, err := s.store.ListBestResults(ctx, meta.SubjectID, meta.Name)
	if err != nil {
		return nil, err
	}

	var charts []model.Chart
	for _, column := range meta.ColumnsMeta {
		if column.Type == model.TypeText {
			continue
		}
		var columnPoints []model.DataPoint
		for _, p := range kept {
			if p.Column == column.Name && p.Value != nil {
				columnPoints = append(columnPoints, p)
			}
		}
		if len(columnPoints) == 0 {
			continue
		}
		charts = append(charts, buildColumnChart(meta, column, columnPoints, details, runOrder, ledger))
	}

	zap.L().Debug("assembled table charts",
		zap.String("table", meta.Name), zap.Int("charts", len(charts)))
	return charts, nil
}

// buildColumnChart turns one column's data points into a chart: one series
// per (release bucket, row), percentile axis bounds with clipping, and an
// optional historical "error threshold" overlay.
func buildColumnChart(meta *model.TableMetadata, column model.ColumnMeta, points []model.DataPoint, details model.RunsDetails, runOrder []uuid.UUID, ledger map[string][]model.BestResult) model.Chart {
	mainPkg := mainPackageName(meta.SUTPackageName, runOrder, details.Packages)

	ys := make([]float64, 0, len(points))
	for _, p := range points {
		ys = append(ys, *p.Value)
	}
	yMin, yMax := axisBounds(ys)

	// Series keyed by "{bucket} - {row}", in first-encounter order.
	var labels []string
	series := map[string][]model.DataPoint{}
	for _, p := range points {
		bucket := releaseBucket(packageVersionOf(details.Packages[p.RunID], mainPkg))
		label := p.Row
		if bucket != "" {
			label = bucket + " - " + p.Row
		}
		if _, ok := series[label]; !ok {
			labels = append(labels, label)
		}
		series[label] = append(series[label], p)
	}

	history := meta.ValidationRules[column.Name]
	higherIsBetter := column.HigherIsBetter != nil && *column.HigherIsBetter

	var datasets []model.ChartDataset
	for i, label := range labels {
		datasets = append(datasets, model.ChartDataset{
			Label:       label,
			BorderColor: seriesColors[i%len(seriesColors)],
			BorderWidth: 2,
			PointRadius: 3,
			ShowLine:    true,
			Data:        seriesPoints(series[label], details, mainPkg, history, ledger, higherIsBetter, yMin, yMax),
		})
	}

	if len(history) > 0 {
		if overlay := thresholdDataset(points, history, ledger, higherIsBetter); overlay != nil {
			datasets = append(datasets, *overlay)
		}
	}

	return model.Chart{
		Options: chartOptions(meta.Name, column, yMin, yMax),
		Data:    model.ChartData{Datasets: datasets},
	}
}

func seriesPoints(points []model.DataPoint, details model.RunsDetails, mainPkg string, history []model.RuleVersion, ledger map[string][]model.BestResult, higherIsBetter bool, yMin, yMax float64) []model.ChartPoint {
	var prevPackages []model.PackageVersion
	out := make([]model.ChartPoint, 0, len(points))

	for _, p := range points {
		cp := model.ChartPoint{
			X:     p.SUTTimestamp,
			Y:     *p.Value,
			RunID: p.RunID,
		}
		if cp.Y < yMin {
			ori := cp.Y
			cp.Y = yMin
			cp.Ori = &ori
		} else if cp.Y > yMax {
			ori := cp.Y
			cp.Y = yMax
			cp.Ori = &ori
		}

		packages := details.Packages[p.RunID]
		cp.Changes = packageChanges(prevPackages, packages, mainPkg)
		prevPackages = packages

		if rule := ruleActiveAt(history, p.SUTTimestamp); rule != nil {
			best := bestValueAt(ledger[model.BestKey(p.Column, p.Row)], p.SUTTimestamp)
			cp.Limit = bindingLimit(*rule, best, higherIsBetter)
		}

		out = append(out, cp)
	}
	return out
}

// thresholdDataset reconstructs the historical validation limit as one
// overlay series: for each distinct point time, the rule version active
// then combined with the best record already written by then. One entry
// per timestamp, so a flat fixed-limit line is drawn only once however
// many row series share the chart.
func thresholdDataset(points []model.DataPoint, history []model.RuleVersion, ledger map[string][]model.BestResult, higherIsBetter bool) *model.ChartDataset {
	sorted := make([]model.DataPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SUTTimestamp.Before(sorted[j].SUTTimestamp)
	})

	seen := map[time.Time]bool{}
	var data []model.ChartPoint
	for _, p := range sorted {
		if seen[p.SUTTimestamp] {
			continue
		}
		rule := ruleActiveAt(history, p.SUTTimestamp)
		if rule == nil {
			continue
		}
		best := bestValueAt(ledger[model.BestKey(p.Column, p.Row)], p.SUTTimestamp)
		limit := bindingLimit(*rule, best, higherIsBetter)
		if limit == nil {
			continue
		}
		seen[p.SUTTimestamp] = true
		data = append(data, model.ChartPoint{X: p.SUTTimestamp, Y: *limit, RunID: p.RunID})
	}
	if len(data) == 0 {
		return nil
	}

	return &model.ChartDataset{
		Label:       "error threshold",
		BorderColor: thresholdColor,
		BorderWidth: 1,
		BorderDash:  []int{5, 5},
		ShowLine:    true,
		Data:        data,
	}
}

// bestValueAt returns the value of the most recent ledger record written at
// or before t, or nil. History is ascending by write time.
func bestValueAt(history []model.BestResult, t time.Time) *float64 {
	var value *float64
	for i := range history {
		if history[i].ResultDate.After(t) {
			break
		}
		value = &history[i].Value
	}
	return value
}

// axisBounds derives display bounds from the 25th/75th percentiles so a
// single outlier cannot flatten the rest of the chart.
func axisBounds(ys []float64) (float64, float64) {
	sorted := make([]float64, len(ys))
	copy(sorted, ys)
	sort.Float64s(sorted)

	n := len(sorted)
	p25 := sorted[int(0.25*float64(n))]
	p75Idx := int(0.75*float64(n)) - 1
	if p75Idx < 0 {
		p75Idx = 0
	}
	p75 := sorted[p75Idx]

	return math.Floor(0.5 * p25), math.Ceil(1.5 * p75)
}

func chartOptions(tableName string, column model.ColumnMeta, yMin, yMax float64) model.ChartOptions {
	yTitle := column.Name
	if column.Unit != "" {
		yTitle += " [" + column.Unit + "]"
	}
	return model.ChartOptions{
		Scales: model.ChartScales{
			Y: model.ChartYAxis{
				Title: model.ChartTitle{Display: true, Text: yTitle},
				Min:   yMin,
				Max:   yMax,
			},
			X: model.ChartXAxis{
				Type: "time",
				Time: model.ChartTimeUnit{
					Unit:           "day",
					DisplayFormats: map[string]string{"day": "yyyy-MM-dd"},
				},
				Title: model.ChartTitle{Display: true, Text: "Date"},
			},
		},
		Elements: model.ChartElements{Line: model.ChartLine{Tension: 0.1}},
		Plugins: model.ChartPlugins{
			Legend: model.ChartLegend{Position: "bottom"},
			Title:  model.ChartTitle{Display: true, Text: tableName + " - " + column.Name},
		},
	}
}

// CalculateTicks computes the global x-axis date range across all charts,
// from the first and last point of every series. Zero value when no series
// has data.
func CalculateTicks(charts []model.Chart) model.GraphTicks {
	var earliest, latest time.Time
	for _, chart := range charts {
		for _, ds := range chart.Data.Datasets {
			if len(ds.Data) == 0 {
				continue
			}
			first := ds.Data[0].X
			last := ds.Data[len(ds.Data)-1].X
			if earliest.IsZero() || first.Before(earliest) {
				earliest = first
			}
			if latest.IsZero() || last.After(latest) {
				latest = last
			}
		}
	}
	if earliest.IsZero() {
		return model.GraphTicks{}
	}
	return model.GraphTicks{
		Min: earliest.Format("2006-01-02"),
		Max: latest.Format("2006-01-02"),
	}
}
