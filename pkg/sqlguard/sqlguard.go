// Package sqlguard classifies SQL statements as read-only or write so
// that read-only tool handlers can refuse anything that mutates state.
package sqlguard

import (
	"regexp"
	"strings"
)

// writeKeywords are statement-leading keywords that mutate state. COPY is
// Snowflake-specific (COPY INTO loads/unloads data) and has no equivalent
// in a generic SQL write-keyword list.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "MERGE", "TRUNCATE",
	"CREATE", "DROP", "ALTER", "COPY", "GRANT", "REVOKE",
	"CALL", "EXECUTE",
}

// readKeywords are statement-leading keywords known to be read-only.
// Anything not in this set and not in writeKeywords is treated as a
// write, by default-deny, for safety.
var readKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true,
	"DESCRIBE": true, "DESC": true, "EXPLAIN": true,
}

var writePattern = regexp.MustCompile(
	`(?i)^\s*(?:--[^\n]*\n\s*|/\*[\s\S]*?\*/\s*)*(` + strings.Join(writeKeywords, "|") + `)(?:\s|$|;|\()`,
)

var leadingKeywordPattern = regexp.MustCompile(
	`(?i)^\s*(?:--[^\n]*\n\s*|/\*[\s\S]*?\*/\s*)*(\w+)`,
)

// IsWrite reports whether sql, taken as a single statement, mutates
// Snowflake state. An empty or unparseable leading keyword is treated as
// a write, matching the original analyzer's default-deny policy.
func IsWrite(sql string) bool {
	normalized := strings.TrimSpace(sql)
	if normalized == "" {
		return true
	}
	if writePattern.MatchString(normalized) {
		return true
	}
	keyword := leadingKeyword(normalized)
	if keyword == "" {
		return true
	}
	return !readKeywords[keyword]
}

// IsWriteMultiStatement reports whether any statement in sql (split on
// top-level semicolons) is a write. A single write anywhere in a batch
// makes the whole batch a write.
func IsWriteMultiStatement(sql string) bool {
	for _, stmt := range splitStatements(sql) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if IsWrite(stmt) {
			return true
		}
	}
	return false
}

func leadingKeyword(normalized string) string {
	m := leadingKeywordPattern.FindStringSubmatch(normalized)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}

// splitStatements performs a naive split on semicolons. It does not
// understand string literals that contain semicolons; callers that need
// that level of rigor should reject such statements independently of
// this guard.
func splitStatements(sql string) []string {
	return strings.Split(sql, ";")
}
