package model

import (
	"time"

	"github.com/google/uuid"
)

// ChartPoint is one renderable point of a series. Y may have been clipped to
// the axis bounds, in which case Ori keeps the unclipped value for tooltips.
// Limit carries the validation threshold applicable at this point's time, and
// Changes lists dependency-package version deltas since the previous point.
type ChartPoint struct {
	X       time.Time `json:"x"`
	Y       float64   `json:"y"`
	Ori     *float64  `json:"ori,omitempty"`
	Limit   *float64  `json:"limit,omitempty"`
	RunID   uuid.UUID `json:"id"`
	Changes []string  `json:"changes,omitempty"`
}

// ChartDataset is one named series of a chart.
type ChartDataset struct {
	Label       string       `json:"label"`
	BorderColor string       `json:"borderColor,omitempty"`
	BorderWidth int          `json:"borderWidth,omitempty"`
	BorderDash  []int        `json:"borderDash,omitempty"`
	PointRadius int          `json:"pointRadius,omitempty"`
	ShowLine    bool         `json:"showLine"`
	Data        []ChartPoint `json:"data"`
}

// Chart is one renderable time-series chart for a (table, column) pair.
type Chart struct {
	Options ChartOptions `json:"options"`
	Data    ChartData    `json:"data"`
}

// ChartData wraps the dataset list the way chart renderers expect it.
type ChartData struct {
	Datasets []ChartDataset `json:"datasets"`
}

// ChartOptions mirrors the subset of chart.js options the engine fills in.
type ChartOptions struct {
	Scales   ChartScales   `json:"scales"`
	Elements ChartElements `json:"elements"`
	Plugins  ChartPlugins  `json:"plugins"`
}

// ChartScales configures both axes.
type ChartScales struct {
	Y ChartYAxis `json:"y"`
	X ChartXAxis `json:"x"`
}

// ChartYAxis configures the value axis, including the percentile-derived
// bounds computed by chart assembly.
type ChartYAxis struct {
	BeginAtZero bool       `json:"beginAtZero"`
	Title       ChartTitle `json:"title"`
	Min         float64    `json:"min"`
	Max         float64    `json:"max"`
}

// ChartXAxis configures the time axis.
type ChartXAxis struct {
	Type  string        `json:"type"`
	Time  ChartTimeUnit `json:"time"`
	Title ChartTitle    `json:"title"`
}

// ChartTimeUnit sets the display granularity of the time axis.
type ChartTimeUnit struct {
	Unit           string            `json:"unit"`
	DisplayFormats map[string]string `json:"displayFormats"`
}

// ChartElements tweaks line rendering.
type ChartElements struct {
	Line ChartLine `json:"line"`
}

// ChartLine holds line-element options.
type ChartLine struct {
	Tension float64 `json:"tension"`
}

// ChartPlugins configures legend and title.
type ChartPlugins struct {
	Legend ChartLegend `json:"legend"`
	Title  ChartTitle  `json:"title"`
}

// ChartLegend positions the legend.
type ChartLegend struct {
	Position string `json:"position"`
}

// ChartTitle is a displayable axis or chart title.
type ChartTitle struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

// GraphTicks is the global x-axis date range across all charts of a subject,
// empty when no chart has data.
type GraphTicks struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}
