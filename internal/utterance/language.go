package utterance

// ResolveLanguages picks the source/target pair for an utterance from the
// language votes of its final fragments.
//
// The dominant language is the most-voted one, ties broken by first-seen
// order. If the dominant language is one of the session's candidates, the
// other candidate becomes the target. Failing that, if the runner-up vote
// is a candidate, it becomes the source and the remaining candidate the
// target. Otherwise the dominant language is kept as source and the
// session's primary language becomes the target.
func ResolveLanguages(votes map[string]int, voteOrder, candidates []string, primary string) (source, target string) {
	ranked := rankVotes(votes, voteOrder)

	if len(ranked) == 0 {
		if other, ok := otherCandidate(candidates, primary); ok {
			return primary, other
		}
		return primary, primary
	}

	dominant := ranked[0]
	if other, ok := otherCandidate(candidates, dominant); ok {
		return dominant, other
	}

	if len(ranked) > 1 {
		if other, ok := otherCandidate(candidates, ranked[1]); ok {
			return ranked[1], other
		}
	}

	return dominant, primary
}

// rankVotes orders languages by vote count descending, first-seen order
// breaking ties.
func rankVotes(votes map[string]int, voteOrder []string) []string {
	ranked := append([]string(nil), voteOrder...)
	// insertion sort; vote maps are tiny
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && votes[ranked[j]] > votes[ranked[j-1]]; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	return ranked
}

// otherCandidate reports whether lang is one of the candidates and if so
// returns the other half of the pair.
func otherCandidate(candidates []string, lang string) (string, bool) {
	found := false
	other := ""
	for _, c := range candidates {
		if c == lang {
			found = true
		} else if other == "" {
			other = c
		}
	}
	if !found {
		return "", false
	}
	if other == "" {
		other = lang
	}
	return other, true
}
