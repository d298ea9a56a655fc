// Package reserved decides which tokens may never be issued: reserved route
// words, profanity, and syntactically invalid custom aliases.
package reserved

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Filter answers membership queries against the reserved and profanity sets.
// All methods are safe for concurrent use; Reload swaps the sets atomically.
type Filter struct {
	sets atomic.Pointer[wordSets]
}

type wordSets struct {
	reserved map[string]struct{}

	profanity map[string]struct{}
	// substrings holds the profanity entries long enough for substring matching.
	substrings []string
}

// NewFilter builds a Filter from lists.
func NewFilter(lists Lists) *Filter {
	f := &Filter{}
	f.Reload(lists)
	return f
}

// Reload replaces the sets. Readers observe either the old or the new sets,
// never a mix.
func (f *Filter) Reload(lists Lists) {
	f.sets.Store(buildSets(lists))
}

// IsReserved reports whether token is a reserved word, ignoring case.
func (f *Filter) IsReserved(token string) bool {
	_, ok := f.sets.Load().reserved[strings.ToLower(token)]
	return ok
}

// ContainsProfanity reports whether token equals or contains a profanity word
// or one of its leetspeak variants, ignoring case.
func (f *Filter) ContainsProfanity(token string) bool {
	s := f.sets.Load()
	lower := strings.ToLower(token)
	if _, ok := s.profanity[lower]; ok {
		return true
	}
	for _, w := range s.substrings {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Allowed reports whether a generated token may be issued.
func (f *Filter) Allowed(token string) bool {
	return !f.IsReserved(token) && !f.ContainsProfanity(token)
}

// Size returns the number of reserved words and profanity entries.
func (f *Filter) Size() (reservedWords, profanityWords int) {
	s := f.sets.Load()
	return len(s.reserved), len(s.profanity)
}

func buildSets(lists Lists) *wordSets {
	s := &wordSets{
		reserved:  make(map[string]struct{}),
		profanity: make(map[string]struct{}),
	}

	for _, w := range lists.Words() {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			s.reserved[w] = struct{}{}
		}
	}

	// Apply mappings in a fixed order so variants are deterministic.
	letters := make([]string, 0, len(lists.LeetspeakMappings))
	for letter, subs := range lists.LeetspeakMappings {
		if len(subs) > 0 {
			letters = append(letters, letter)
		}
	}
	sort.Strings(letters)

	for _, w := range lists.ProfanityWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		s.profanity[w] = struct{}{}

		leet := w
		for _, letter := range letters {
			leet = strings.ReplaceAll(leet, strings.ToLower(letter), strings.ToLower(lists.LeetspeakMappings[letter][0]))
		}
		s.profanity[leet] = struct{}{}
	}

	minLen := lists.MinSubstringLength
	if minLen < 1 {
		minLen = 1
	}
	for w := range s.profanity {
		if len(w) >= minLen {
			s.substrings = append(s.substrings, w)
		}
	}
	sort.Strings(s.substrings)

	return s
}
