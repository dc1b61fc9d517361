package textindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text into lowercase Unicode letter/digit runs after
// NFKC normalization, so full-width forms, ligatures, and compatibility
// characters fold onto their canonical tokens.
func Tokenize(text string) []string {
	normalized := norm.NFKC.String(text)
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// QueryTerm is one parsed search term.
type QueryTerm struct {
	Token  string
	Prefix bool // trailing * requests prefix matching
}

// ParseQuery splits a query on whitespace and resolves the optional
// trailing-asterisk prefix syntax. Terms that tokenize to nothing are
// dropped; a term tokenizing to several tokens contributes each of them.
func ParseQuery(query string) []QueryTerm {
	var terms []QueryTerm
	for _, raw := range strings.Fields(query) {
		prefix := strings.HasSuffix(raw, "*")
		if prefix {
			raw = strings.TrimSuffix(raw, "*")
		}
		toks := Tokenize(raw)
		for i, tok := range toks {
			terms = append(terms, QueryTerm{
				Token: tok,
				// Only the final token of a term carries the prefix flag.
				Prefix: prefix && i == len(toks)-1,
			})
		}
	}
	return terms
}
