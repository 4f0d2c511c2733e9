// internal/pipeline/planner/heuristics.go
package planner

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"insights-engine/internal/conversation"
	"insights-engine/internal/models"
	"insights-engine/internal/schema"
)

// anaphora tokens mark a message that leans on a prior result.
var anaphoraTokens = []string{
	"that", "those", "them", "they", "it", "this", "these",
	"previous", "again", "same",
}

var followUpPhrases = []string{
	"what about", "and for", "how about", "show me more", "drill into",
}

// entitySynonyms maps conversational vocabulary to candidate tables. A term
// mapping to several tables with nothing else to break the tie is the ambiguity
// case that routes to clarification.
var entitySynonyms = map[string][]string{
	"client":     {"customers"},
	"buyer":      {"customers"},
	"shopper":    {"customers"},
	"sale":       {"orders"},
	"purchase":   {"orders"},
	"revenue":    {"orders"},
	"pipeline":   {"deals"},
	"prospect":   {"leads", "contacts"},
	"outreach":   {"campaigns", "email_events"},
	"engagement": {"email_events", "customer_insights"},
}

// domainVocabulary maps standalone wording to a business domain when no table
// name appears in the message.
var domainVocabulary = map[string]string{
	"revenue": "commerce", "order": "commerce", "sales": "commerce",
	"product": "commerce", "invoice": "commerce", "refund": "commerce",
	"customer": "crm", "deal": "crm", "contact": "crm", "lead": "crm",
	"campaign": "marketing", "click": "marketing", "open rate": "marketing",
	"audience": "marketing", "segment": "analytics", "insight": "analytics",
}

var (
	topNPattern    = regexp.MustCompile(`\b(?:top|first|best|biggest|largest|highest)\s+(\d+)\b`)
	countPattern   = regexp.MustCompile(`\b(?:how many|count of|number of|total number)\b`)
	rankingPattern = regexp.MustCompile(`\b(?:top|best|biggest|largest|highest|most|ranked?)\b`)
)

// heuristicPlan is the deterministic pass: it always runs and is the whole
// planner when no model is configured.
func (p *Planner) heuristicPlan(req Request) *models.QueryPlan {
	msg := strings.ToLower(req.Message)

	plan := &models.QueryPlan{
		TurnType: classifyTurnType(msg, req.State),
		Intent:   strings.TrimSpace(req.Message),
	}

	plan.ResolvedReferences = resolveReferences(msg, req.State)

	tables, ambiguousOptions := inferTables(msg, req.Schema)
	plan.TablesNeeded = tables

	if len(ambiguousOptions) > 0 {
		plan.Ambiguous = true
		plan.ClarificationPrompt = "I can look at a few different things here. Which did you mean?"
		plan.ClarificationOptions = ambiguousOptions
	}

	plan.Domain = detectDomain(msg, tables, req.Schema)

	if n, ok := extractExpectedCount(msg); ok {
		plan.ExpectedCount = &n
		plan.OutputTemplate = models.TemplateRankedList
	}
	if countPattern.MatchString(msg) {
		one := 1
		plan.ExpectedCount = &one
		plan.OutputTemplate = models.TemplateMetricSummary
	}

	return plan
}

func classifyTurnType(msg string, state *conversation.State) models.TurnType {
	if state == nil || len(state.History()) == 0 {
		return models.TurnTypeNew
	}
	for _, phrase := range followUpPhrases {
		if strings.Contains(msg, phrase) {
			return models.TurnTypeFollowUp
		}
	}
	words := tokenize(msg)
	for _, w := range words {
		for _, tok := range anaphoraTokens {
			if w == tok {
				return models.TurnTypeFollowUp
			}
		}
	}
	return models.TurnTypeNew
}

// resolveReferences maps anaphoric phrases like "that customer" onto entities
// recorded in earlier turns. Unresolvable referents are simply left out; the
// ambiguity check downstream decides whether that matters.
func resolveReferences(msg string, state *conversation.State) map[string]string {
	if state == nil {
		return nil
	}
	known := state.References()
	if len(known) == 0 {
		return nil
	}

	resolved := make(map[string]string)
	words := tokenize(msg)
	for i, w := range words {
		if w != "that" && w != "those" && w != "this" && w != "these" {
			continue
		}
		if i+1 >= len(words) {
			continue
		}
		referent := singular(words[i+1])
		if entity, ok := known[referent]; ok {
			resolved[referent] = entity
		}
	}
	if len(resolved) == 0 {
		return nil
	}
	return resolved
}

// inferTables scores schema tables against the message vocabulary. A synonym
// hitting several tables with no direct table mention wins the turn a
// clarification prompt instead of a guess.
func inferTables(msg string, m *schema.Map) ([]string, []string) {
	if m == nil {
		return nil, nil
	}

	scores := make(map[string]int)
	words := tokenize(msg)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
		wordSet[singular(w)] = true
	}

	// Direct table-name mentions score highest.
	for name := range m.Tables {
		base := singular(name)
		if wordSet[name] || wordSet[base] {
			scores[name] += 3
		}
	}

	// Synonym hits.
	var ambiguous []string
	for term, candidates := range entitySynonyms {
		if !wordSet[term] && !wordSet[singular(term)] {
			continue
		}
		hits := make([]string, 0, len(candidates))
		for _, c := range candidates {
			if _, ok := m.Get(c); ok {
				hits = append(hits, c)
			}
		}
		if len(hits) == 1 {
			scores[hits[0]] += 2
		} else if len(hits) > 1 && len(scores) == 0 {
			ambiguous = append(ambiguous, hits...)
		}
	}

	if len(scores) == 0 {
		sort.Strings(ambiguous)
		return nil, dedupe(ambiguous)
	}

	type scored struct {
		name  string
		score int
	}
	ranked := make([]scored, 0, len(scores))
	for name, s := range scores {
		ranked = append(ranked, scored{name, s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	tables := make([]string, 0, len(ranked))
	for _, r := range ranked {
		tables = append(tables, r.name)
	}
	return tables, nil
}

func detectDomain(msg string, tables []string, m *schema.Map) string {
	if len(tables) > 0 && m != nil {
		if t, ok := m.Get(tables[0]); ok {
			return t.Domain
		}
	}
	for term, domain := range domainVocabulary {
		if strings.Contains(msg, term) {
			return domain
		}
	}
	return ""
}

func extractExpectedCount(msg string) (int, bool) {
	match := topNPattern.FindStringSubmatch(msg)
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ImpliesRanking reports whether the intent wording asks for a sorted
// comparison; the presenter uses this for the ranked-list view.
func ImpliesRanking(intent string) bool {
	return rankingPattern.MatchString(strings.ToLower(intent))
}

var nonWord = regexp.MustCompile(`[^a-z0-9_]+`)

func tokenize(msg string) []string {
	return strings.Fields(nonWord.ReplaceAllString(strings.ToLower(msg), " "))
}

// singular is a naive English singularizer, good enough for table vocabulary.
func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 3:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ses") && len(w) > 3:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 1:
		return w[:len(w)-1]
	}
	return w
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

