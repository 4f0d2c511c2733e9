// internal/pipeline/presenter/presenter.go
package presenter

import (
	"strconv"
	"strings"

	"insights-engine/internal/common/logger"
	"insights-engine/internal/models"
	"insights-engine/internal/pipeline/formatter"
	"insights-engine/internal/pipeline/planner"
	"insights-engine/internal/pipeline/validation"
	"insights-engine/internal/schema"
)

// Presenter selects a visualization template for an executed result and writes
// a confidence-annotated narrative. It mutates the QueryResult in place, which
// is fine: a QueryResult is single-turn, non-shared state.
type Presenter struct {
	logger logger.Logger
}

func New(log logger.Logger) *Presenter {
	return &Presenter{
		logger: log.WithFields(map[string]interface{}{"component": "presenter"}),
	}
}

// Present populates Visualization and NarrativeSummary and returns the
// validation gate's verdict alongside. Presenting the same (result, plan) pair
// twice yields identical output: everything is rebuilt from the inputs.
func (p *Presenter) Present(result *models.QueryResult, plan *models.QueryPlan, m *schema.Map) validation.Outcome {
	outcome := validation.Check(result, plan)

	if result == nil || !result.Success || result.Data.Empty() {
		// No visualization for empty or failed results.
		if result != nil {
			result.Visualization = nil
			result.NarrativeSummary = ""
		}
		return outcome
	}

	viz := p.selectTemplate(result, plan, m)
	result.Visualization = viz
	result.NarrativeSummary = buildNarrative(viz, result, plan)

	p.logger.Debug("result presented", map[string]interface{}{
		"template": string(viz.Type),
		"rowCount": result.RowCount,
	})
	return outcome
}

// selectTemplate applies the template precedence: explicit override first, then
// single-row shapes (identity profile, aggregate metric, generic profile), then
// ranked chart, then the table fallback.
func (p *Presenter) selectTemplate(result *models.QueryResult, plan *models.QueryPlan, m *schema.Map) *models.Visualization {
	data := result.Data

	switch plan.OutputTemplate {
	case models.TemplateProfile:
		return buildProfile(data, m)
	case models.TemplateMetricSummary:
		return buildMetric(data, m)
	case models.TemplateRankedList, models.TemplateChart:
		if viz := buildChart(data, m); viz != nil {
			return viz
		}
		// No numeric column to chart; generic rendering instead.
		return buildTable(data, m)
	case models.TemplateTable:
		return buildTable(data, m)
	}

	if len(data.Rows) == 1 {
		row := data.Rows[0]
		if hasIdentityFields(data.Columns, row) {
			return buildProfile(data, m)
		}
		if isAggregateShaped(data, plan.Intent) {
			return buildMetric(data, m)
		}
		return buildProfile(data, m)
	}

	if planner.ImpliesRanking(plan.Intent) {
		if viz := buildChart(data, m); viz != nil {
			return viz
		}
	}

	return buildTable(data, m)
}

// hasIdentityFields: an email field plus a name-like field make a single row a
// person/entity record rather than an aggregate.
func hasIdentityFields(columns []string, row models.Row) bool {
	hasEmail, hasName := false, false
	for _, col := range columns {
		v, ok := row[col]
		if !ok || v.IsNull() {
			continue
		}
		lower := strings.ToLower(col)
		if strings.Contains(lower, "email") {
			hasEmail = true
		}
		if isNameColumn(lower) {
			hasName = true
		}
	}
	return hasEmail && hasName
}

func isNameColumn(lower string) bool {
	return lower == "name" || strings.HasSuffix(lower, "_name") || strings.HasPrefix(lower, "name_")
}

// isAggregateShaped: at most three displayable numeric columns, or counting
// language in the intent.
func isAggregateShaped(data models.RowSet, intent string) bool {
	lowerIntent := strings.ToLower(intent)
	if strings.Contains(lowerIntent, "total") || strings.Contains(lowerIntent, "how many") {
		return true
	}

	numeric, other := 0, 0
	for _, col := range data.Columns {
		if isIdentifierColumn(col) {
			continue
		}
		v, ok := data.Rows[0][col]
		if !ok || v.IsNull() {
			continue
		}
		if v.IsNumeric() {
			numeric++
		} else {
			other++
		}
	}
	return numeric > 0 && numeric <= 3 && other == 0
}

// isIdentifierColumn flags record/tenant identity columns. Suppressed from
// profile and metric displays but retained in tables.
func isIdentifierColumn(col string) bool {
	lower := strings.ToLower(col)
	return lower == "id" || strings.HasSuffix(lower, "_id")
}

func buildTable(data models.RowSet, m *schema.Map) *models.Visualization {
	columns := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		columns[i] = formatter.HumanizeColumn(col)
	}

	rows := make([][]string, 0, len(data.Rows))
	for _, row := range data.Rows {
		cells := make([]string, len(data.Columns))
		for i, col := range data.Columns {
			v, ok := row[col]
			if !ok || v.IsNull() {
				cells[i] = ""
				continue
			}
			cells[i] = formatter.FormatValue(col, v, m)
		}
		rows = append(rows, cells)
	}

	return &models.Visualization{
		Type:         models.VisualizationTable,
		TableColumns: columns,
		TableRows:    rows,
	}
}

// buildChart renders the ranked-list view: one bar per row, labeled by the
// first text-like column, sized by the first non-identifier numeric column.
func buildChart(data models.RowSet, m *schema.Map) *models.Visualization {
	valueCol := ""
	for _, col := range data.Columns {
		if isIdentifierColumn(col) {
			continue
		}
		if v, ok := data.Rows[0][col]; ok && v.IsNumeric() {
			valueCol = col
			break
		}
	}
	if valueCol == "" {
		return nil
	}

	labelCol := ""
	for _, col := range data.Columns {
		if isIdentifierColumn(col) || col == valueCol {
			continue
		}
		if v, ok := data.Rows[0][col]; ok && v.Kind == models.KindText {
			labelCol = col
			break
		}
	}

	points := make([]models.ChartPoint, 0, len(data.Rows))
	for i, row := range data.Rows {
		label := ""
		if labelCol != "" {
			label = row[labelCol].Raw()
		}
		if label == "" {
			label = formatter.HumanizeColumn(valueCol) + " " + strconv.Itoa(i+1)
		}
		f, _ := row[valueCol].AsFloat()
		points = append(points, models.ChartPoint{Label: label, Value: f})
	}

	return &models.Visualization{
		Type:      models.VisualizationChart,
		Title:     formatter.HumanizeColumn(valueCol),
		ChartType: "bar",
		ChartData: points,
	}
}

func buildMetric(data models.RowSet, m *schema.Map) *models.Visualization {
	row := data.Rows[0]
	cards := make([]models.MetricCard, 0, len(data.Columns))
	for _, col := range data.Columns {
		if isIdentifierColumn(col) {
			continue
		}
		v, ok := row[col]
		if !ok || v.IsNull() || !v.IsNumeric() {
			continue
		}
		cards = append(cards, models.MetricCard{
			Label: formatter.HumanizeColumn(col),
			Value: formatter.FormatValue(col, v, m),
		})
	}
	return &models.Visualization{
		Type:        models.VisualizationMetric,
		MetricCards: cards,
	}
}
