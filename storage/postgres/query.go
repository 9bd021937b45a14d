package postgres

import (
	"strings"

	"github.com/poiesic/skimap/core"
)

const candidateColumns = `id, type, name, rank`

// tsQuery renders query tokens as an AND of prefix lexemes: "garmisch:* & l:*".
// Tokens only hold letters and digits, so no quoting is needed.
func tsQuery(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, token := range tokens {
		parts[i] = token + ":*"
	}
	return strings.Join(parts, " & ")
}

// likePattern wraps folded in % wildcards, escaping LIKE metacharacters.
func likePattern(folded string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(folded) + "%"
}

// buildCandidateQuery returns the two-tier candidate SQL and its arguments.
// Each row is (id, type, name, rank, word_boundary).
func buildCandidateQuery(query core.TextQuery) (string, []any) {
	pattern := likePattern(query.Folded)
	if len(query.Tokens) == 0 {
		return `SELECT ` + candidateColumns + `, FALSE AS word_boundary
FROM skimap_features
WHERE search_text LIKE $1 ESCAPE '\'`, []any{pattern}
	}

	return `WITH primary_tier AS (
	SELECT ` + candidateColumns + `
	FROM skimap_features
	WHERE searchable_tsv @@ to_tsquery('simple', $1)
)
SELECT ` + candidateColumns + `, TRUE AS word_boundary FROM primary_tier
UNION ALL
SELECT ` + candidateColumns + `, FALSE AS word_boundary
FROM skimap_features
WHERE search_text LIKE $2 ESCAPE '\'
	AND id NOT IN (SELECT id FROM primary_tier)`, []any{tsQuery(query.Tokens), pattern}
}
