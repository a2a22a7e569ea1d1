package query

import (
	"strings"
	"unicode"
)

type Category int

const (
	CategoryUnknown Category = iota
	CategoryRead
	CategoryWrite
	CategorySchema
)

func (c Category) String() string {
	switch c {
	case CategoryRead:
		return "READ"
	case CategoryWrite:
		return "WRITE"
	case CategorySchema:
		return "SCHEMA"
	default:
		return "UNKNOWN"
	}
}

// Statement is the classification of one SQL text. Keyword is the
// canonical leading keyword ("SELECT", "DESCRIBE", ...) or "UNKNOWN".
type Statement struct {
	Keyword  string
	Category Category
}

const KeywordUnknown = "UNKNOWN"

// Ordered lookup table. DESC is an alias reported as DESCRIBE.
var keywordTable = []struct {
	token    string
	keyword  string
	category Category
}{
	{"SELECT", "SELECT", CategoryRead},
	{"INSERT", "INSERT", CategoryWrite},
	{"UPDATE", "UPDATE", CategoryWrite},
	{"DELETE", "DELETE", CategoryWrite},
	{"CREATE", "CREATE", CategorySchema},
	{"ALTER", "ALTER", CategorySchema},
	{"DROP", "DROP", CategorySchema},
	{"TRUNCATE", "TRUNCATE", CategorySchema},
	{"SHOW", "SHOW", CategoryRead},
	{"DESCRIBE", "DESCRIBE", CategoryRead},
	{"DESC", "DESCRIBE", CategoryRead},
	{"EXPLAIN", "EXPLAIN", CategoryRead},
}

// Classify picks a response shape for raw. It only inspects the leading
// keyword and is not a security decision.
func Classify(raw string) Statement {
	token := leadingToken(raw)
	if token == "" {
		return Statement{Keyword: KeywordUnknown, Category: CategoryUnknown}
	}

	upper := strings.ToUpper(token)
	for _, entry := range keywordTable {
		if upper == entry.token {
			return Statement{Keyword: entry.keyword, Category: entry.category}
		}
	}

	return Statement{Keyword: KeywordUnknown, Category: CategoryUnknown}
}

// leadingToken returns the first word of raw after trimming whitespace.
// The word ends at whitespace or at the first non-letter, so "select*from t"
// and "select(1)" still yield "select".
func leadingToken(raw string) string {
	trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		return trimmed
	}
	return trimmed[:end]
}
