package normalizer

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

// DefaultMatchThreshold is the minimum similarity score (0-100) for a
// fuzzy alias match.
const DefaultMatchThreshold = 85

// ClientMatch is the alias chosen for a payer name.
type ClientMatch struct {
	AliasID      uuid.UUID
	Pattern      string
	ClientNumber int
	Score        int
}

// AliasLister loads aliases; ClientAliasStore implements it.
type AliasLister interface {
	ListAliases(ctx context.Context) ([]ClientAlias, error)
}

// ClientMatcher resolves payer names to client numbers using stored
// aliases. Variations like "ACME SA DE CV" vs "ACME S.A. DE C.V." are
// absorbed by the fuzzy score.
type ClientMatcher struct {
	mu        sync.RWMutex
	aliases   []aliasPattern
	threshold int
}

type aliasPattern struct {
	id     uuid.UUID
	key    string
	client int
}

// NewClientMatcher builds a matcher. threshold <= 0 uses
// DefaultMatchThreshold.
func NewClientMatcher(aliases []ClientAlias, threshold int) *ClientMatcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	m := &ClientMatcher{threshold: threshold}
	m.Build(aliases)
	return m
}

// Build replaces the alias set.
func (m *ClientMatcher) Build(aliases []ClientAlias) {
	patterns := make([]aliasPattern, 0, len(aliases))
	for _, a := range aliases {
		key := aliasKey(a.Pattern)
		if key == "" {
			continue
		}
		patterns = append(patterns, aliasPattern{id: a.ID, key: key, client: a.ClientNumber})
	}

	m.mu.Lock()
	m.aliases = patterns
	m.mu.Unlock()
}

// Refresh reloads aliases from store.
func (m *ClientMatcher) Refresh(ctx context.Context, store AliasLister) (int, error) {
	aliases, err := store.ListAliases(ctx)
	if err != nil {
		return 0, err
	}
	m.Build(aliases)
	return len(aliases), nil
}

// Len reports how many aliases are loaded.
func (m *ClientMatcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.aliases)
}

// Match returns the best alias for payer scoring at least the threshold.
// Ties go to the alias listed first.
func (m *ClientMatcher) Match(payer string) (ClientMatch, bool) {
	key := aliasKey(payer)
	if key == "" {
		return ClientMatch{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  ClientMatch
		found bool
	)
	for _, a := range m.aliases {
		score := similarity(key, a.key)
		if score < m.threshold || (found && score <= best.Score) {
			continue
		}
		best = ClientMatch{AliasID: a.id, Pattern: a.key, ClientNumber: a.client, Score: score}
		found = true
	}
	return best, found
}

// aliasKey folds s and drops punctuation so "S.A. de C.V." equals "SA DE CV".
func aliasKey(s string) string {
	folded := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			return r
		case r == '.' || r == ',':
			return -1
		}
		return ' '
	}, sniffer.Fold(s))
	return strings.Join(strings.Fields(folded), " ")
}

// similarity scores two folded names on 0-100.
//
// Containment only counts on whole tokens and needs at least two shared
// tokens, so a lone first name or surname never resolves a client. A name
// found as a contiguous run inside the other scores from 80 up by token
// ratio. A name whose tokens appear in order but with gaps ("MARIA LOPEZ"
// in "MARIA GONZALEZ LOPEZ") stays below the default threshold, since the
// skipped token is as likely a different surname as a middle name.
// Everything else follows the Levenshtein distance, which absorbs typos.
func similarity(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}

	maxLen := max(len(s1), len(s2))
	distance := fuzzy.LevenshteinDistance(s1, s2)
	score := 100 * (maxLen - distance) / maxLen

	short, long := strings.Fields(s1), strings.Fields(s2)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < minSharedTokens {
		return score
	}

	var alt int
	switch {
	case containsRun(long, short):
		alt = 80 + 20*len(short)/len(long)
	case containsInOrder(long, short):
		alt = 70 + 15*len(short)/len(long)
	}
	return max(score, alt)
}

const minSharedTokens = 2

// containsRun reports whether sub appears as consecutive tokens of tokens.
func containsRun(tokens, sub []string) bool {
	for i := 0; i+len(sub) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(sub)], sub) {
			return true
		}
	}
	return false
}

// containsInOrder reports whether every token of sub appears in tokens in
// the same order, gaps allowed.
func containsInOrder(tokens, sub []string) bool {
	j := 0
	for _, tok := range tokens {
		if j < len(sub) && tok == sub[j] {
			j++
		}
	}
	return j == len(sub)
}
