// internal/pipeline/executor/guard.go
package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"insights-engine/internal/schema"
)

// The guard is the fail-closed static check every generated statement passes
// before dispatch. It enforces the two non-negotiables: pure read, and a
// tenant filter. Rejection reasons feed the engine_sql_rejected_total metric.

var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "truncate", "create",
	"grant", "revoke", "copy", "vacuum", "merge", "call", "do", "execute",
	"pg_sleep", "pg_read_file", "lo_import", "into",
}

var (
	tenantFilterPattern = regexp.MustCompile(`(?i)\b(?:\w+\.)?(?:organization_id|org_id|tenant_id)\s*=\s*\$1\b`)
	limitPattern        = regexp.MustCompile(`(?i)\blimit\s+(\d+)\b`)
	commentPattern      = regexp.MustCompile(`(?:--|/\*)`)
	fromTablePattern    = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-z_][a-z0-9_]*)`)
)

// GuardError carries the rejection reason label alongside the message.
type GuardError struct {
	Reason  string
	Message string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// CheckStatement validates a generated statement against the read-only and
// tenant-scoping contracts. allowedTables is the plan's table set: a statement
// reaching outside it fails closed even if the SQL is otherwise harmless.
func CheckStatement(stmt string, allowedTables []string, m *schema.Map) error {
	normalized := strings.TrimSpace(stmt)
	normalized = strings.TrimSuffix(normalized, ";")

	if normalized == "" {
		return &GuardError{Reason: "empty", Message: "empty statement"}
	}
	if strings.Contains(normalized, ";") {
		return &GuardError{Reason: "multiple_statements", Message: "statement chaining is not allowed"}
	}
	if commentPattern.MatchString(normalized) {
		return &GuardError{Reason: "comment", Message: "comments are not allowed in generated SQL"}
	}

	lower := strings.ToLower(normalized)
	if !strings.HasPrefix(lower, "select") {
		return &GuardError{Reason: "not_select", Message: "only SELECT statements may execute"}
	}

	words := regexp.MustCompile(`[a-z_]+`).FindAllString(lower, -1)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}
	for _, kw := range forbiddenKeywords {
		if wordSet[kw] {
			return &GuardError{Reason: "forbidden_keyword", Message: "forbidden keyword: " + kw}
		}
	}

	allowed := make(map[string]bool, len(allowedTables))
	for _, t := range allowedTables {
		allowed[strings.ToLower(t)] = true
	}
	for _, match := range fromTablePattern.FindAllStringSubmatch(lower, -1) {
		table := match[1]
		if !allowed[table] {
			if _, known := m.Get(table); !known {
				return &GuardError{Reason: "unknown_table", Message: "unknown table: " + table}
			}
			return &GuardError{Reason: "table_not_in_plan", Message: "table outside plan scope: " + table}
		}
	}

	if !tenantFilterPattern.MatchString(normalized) {
		return &GuardError{Reason: "missing_tenant_filter", Message: "statement lacks the tenant filter"}
	}

	return nil
}

// LimitOf extracts the statement's LIMIT clause value, if any. Shared with the
// validation gate's under-fetch check.
func LimitOf(stmt string) *int {
	match := limitPattern.FindStringSubmatch(stmt)
	if match == nil {
		return nil
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &n
}
