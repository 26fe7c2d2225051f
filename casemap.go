package myriad

import "strings"

// Fold converts a nickname to its canonical representation under the
// casemapping, which must be unique server-wide.
//
// rfc1459 treats []\~ as the lowercase forms of {}|^ per RFC 1459 section
// 2.2; rfc1459-strict leaves ~ and ^ distinct. rfc7613 calls for PRECIS
// enforcement, which is out of scope here, so it folds like ascii.
//
// Note: We don't check validity or strip whitespace.
func (c CaseMap) Fold(name string) string {
	lower := strings.ToLower(name)

	switch c {
	case CaseMapRFC1459:
		return rfc1459Replacer.Replace(lower)
	case CaseMapRFC1459Strict:
		return rfc1459StrictReplacer.Replace(lower)
	default:
		return lower
	}
}

var (
	rfc1459Replacer       = strings.NewReplacer("[", "{", "]", "}", "\\", "|", "~", "^")
	rfc1459StrictReplacer = strings.NewReplacer("[", "{", "]", "}", "\\", "|")
)
