// internal/models/visualization.go
package models

// VisualizationType discriminates the payload the UI layer renders.
type VisualizationType string

const (
	VisualizationProfile VisualizationType = "profile"
	VisualizationChart   VisualizationType = "chart"
	VisualizationMetric  VisualizationType = "metric"
	VisualizationTable   VisualizationType = "table"
)

// Visualization carries only the payload relevant to its type; the other
// variants stay empty and are dropped from the JSON.
type Visualization struct {
	Type VisualizationType `json:"type"`

	// profile
	Title           string           `json:"title,omitempty"`
	ProfileSections []ProfileSection `json:"profile_sections,omitempty"`

	// chart
	ChartType string       `json:"chart_type,omitempty"`
	ChartData []ChartPoint `json:"chart_data,omitempty"`

	// metric
	MetricCards []MetricCard `json:"metric_cards,omitempty"`

	// table
	TableColumns []string   `json:"table_columns,omitempty"`
	TableRows    [][]string `json:"table_rows,omitempty"`
}

// ProfileSection groups related fields of a single entity record.
type ProfileSection struct {
	Title  string         `json:"title"`
	Fields []ProfileField `json:"fields"`
}

type ProfileField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ChartPoint is one bar/point in a ranked comparison.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// MetricCard is a single headline number.
type MetricCard struct {
	Label string `json:"label"`
	Value string `json:"value"`
}
