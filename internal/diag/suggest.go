package diag

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Suggest appends a "did you mean" hint to a diagnostic by fuzzy-matching
// the unresolved name against the candidates and picking the match with
// the smallest distance. The checker calls it for NameNotFound and
// FunctionNotFound diagnostics, with the names currently in scope.
func Suggest(err *Error, unresolved string, candidates []string) *Error {
	if len(candidates) == 0 {
		return err
	}
	ranked := fuzzy.RankFindFold(unresolved, candidates)
	if len(ranked) == 0 {
		return err
	}
	sort.Sort(ranked)
	best := ranked[0].Target
	return err.WithContext("suggestion", best)
}
