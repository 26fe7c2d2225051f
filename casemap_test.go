package myriad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseMapFold(t *testing.T) {
	tests := []struct {
		caseMap CaseMap
		in      string
		want    string
	}{
		{CaseMapASCII, "Alice", "alice"},
		{CaseMapASCII, "ALICE", "alice"},
		{CaseMapASCII, "nick[1]", "nick[1]"},
		{CaseMapASCII, "a\\b~c", "a\\b~c"},

		{CaseMapRFC1459, "Nick[1]", "nick{1}"},
		{CaseMapRFC1459, "a\\b", "a|b"},
		{CaseMapRFC1459, "wave~", "wave^"},
		{CaseMapRFC1459, "UP^", "up^"},

		{CaseMapRFC1459Strict, "Nick[1]", "nick{1}"},
		{CaseMapRFC1459Strict, "a\\b", "a|b"},
		{CaseMapRFC1459Strict, "wave~", "wave~"},

		{CaseMapRFC7613, "Alice", "alice"},
		{CaseMapRFC7613, "nick[1]", "nick[1]"},
	}

	for _, test := range tests {
		t.Run(string(test.caseMap)+"/"+test.in, func(t *testing.T) {
			assert.Equal(t, test.want, test.caseMap.Fold(test.in))
		})
	}
}

func TestCaseMapFoldIdempotent(t *testing.T) {
	for _, c := range []CaseMap{
		CaseMapASCII, CaseMapRFC1459, CaseMapRFC1459Strict, CaseMapRFC7613,
	} {
		for _, name := range []string{"Alice", "Nick[1]", "a\\b~c^d"} {
			once := c.Fold(name)
			assert.Equal(t, once, c.Fold(once), "%s folding %q", c, name)
		}
	}
}
