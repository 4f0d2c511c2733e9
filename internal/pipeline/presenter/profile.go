// internal/pipeline/presenter/profile.go
package presenter

import (
	"strings"

	"insights-engine/internal/models"
	"insights-engine/internal/pipeline/formatter"
	"insights-engine/internal/schema"
)

// Profile section bucketing is keyword-driven on column names. A field landing
// in no transactional or behavioral bucket stays in Overview.
var (
	transactionalMarkers = []string{
		"order", "purchase", "total", "revenue", "spend", "amount",
		"payment", "invoice", "ltv", "subscription", "plan",
	}
	behavioralMarkers = []string{
		"score", "segment", "churn", "propensity", "engagement",
		"preference", "insight", "affinity", "predicted", "likelihood",
	}
)

const (
	sectionOverview   = "Overview"
	sectionPurchases  = "Purchase History"
	sectionBehavioral = "Behavioral Profile"
	sectionDetails    = "Details"
)

func buildProfile(data models.RowSet, m *schema.Map) *models.Visualization {
	row := data.Rows[0]

	identity := hasIdentityFields(data.Columns, row)

	overview := models.ProfileSection{Title: sectionOverview}
	purchases := models.ProfileSection{Title: sectionPurchases}
	behavioral := models.ProfileSection{Title: sectionBehavioral}

	if !identity {
		overview.Title = sectionDetails
	}

	for _, col := range data.Columns {
		if isIdentifierColumn(col) {
			continue
		}
		v, ok := row[col]
		if !ok || v.IsNull() {
			continue
		}

		field := models.ProfileField{
			Label: formatter.HumanizeColumn(col),
			Value: formatter.FormatValue(col, v, m),
		}

		switch bucketFor(col, identity) {
		case sectionPurchases:
			purchases.Fields = append(purchases.Fields, field)
		case sectionBehavioral:
			behavioral.Fields = append(behavioral.Fields, field)
		default:
			overview.Fields = append(overview.Fields, field)
		}
	}

	var sections []models.ProfileSection
	for _, s := range []models.ProfileSection{overview, purchases, behavioral} {
		if len(s.Fields) > 0 {
			sections = append(sections, s)
		}
	}

	return &models.Visualization{
		Type:            models.VisualizationProfile,
		Title:           profileTitle(data.Columns, row),
		ProfileSections: sections,
	}
}

func bucketFor(col string, identity bool) string {
	if !identity {
		return sectionDetails
	}
	lower := strings.ToLower(col)
	for _, marker := range behavioralMarkers {
		if strings.Contains(lower, marker) {
			return sectionBehavioral
		}
	}
	for _, marker := range transactionalMarkers {
		if strings.Contains(lower, marker) {
			return sectionPurchases
		}
	}
	return sectionOverview
}

// profileTitle concatenates the name fields when both exist, falls back to any
// single name field, then to the first text-like value.
func profileTitle(columns []string, row models.Row) string {
	var first, last, anyName string
	for _, col := range columns {
		v, ok := row[col]
		if !ok || v.Kind != models.KindText || v.Text == "" {
			continue
		}
		lower := strings.ToLower(col)
		switch {
		case lower == "first_name":
			first = v.Text
		case lower == "last_name":
			last = v.Text
		case isNameColumn(lower) && anyName == "":
			anyName = v.Text
		}
	}

	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case anyName != "":
		return anyName
	}

	for _, col := range columns {
		if isIdentifierColumn(col) {
			continue
		}
		if v, ok := row[col]; ok && v.Kind == models.KindText && v.Text != "" {
			return v.Text
		}
	}
	return ""
}
