package allocator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/gourl/shortcode/internal/reserved"
)

// MaxSuggestions is the number of alternatives offered for a taken alias.
const MaxSuggestions = 5

// CheckAlias verifies that a user-supplied alias may be used: valid syntax,
// not reserved, not taken. On success the alias is reserved when a Reserver
// is configured. The pool is never involved.
func (a *Allocator) CheckAlias(ctx context.Context, alias string) error {
	if err := reserved.ValidateAlias(alias); err != nil {
		return err
	}
	if a.filter.IsReserved(alias) {
		return fmt.Errorf("%w: %q", ErrReservedAlias, alias)
	}

	taken, err := a.taken(ctx, alias)
	if err != nil {
		return err
	}
	if taken || !a.reserve(ctx, alias) {
		return &AliasTakenError{Alias: alias, Suggestions: a.Suggestions(alias)}
	}
	return nil
}

// Suggestions returns up to MaxSuggestions alternatives for alias. They are
// syntactically valid and not reserved but are not checked against the store.
func (a *Allocator) Suggestions(alias string) []string {
	base := strings.ToLower(alias)
	year := time.Now().Year()

	patterns := []string{
		fmt.Sprintf("%s-%d", base, 10+rand.IntN(89)),
		fmt.Sprintf("%s%d", base, 100+rand.IntN(899)),
		fmt.Sprintf("%s-%d", base, 1000+rand.IntN(8999)),
		fmt.Sprintf("my-%s-%d", base, 10+rand.IntN(89)),
		fmt.Sprintf("%s-%d", base, year),
	}

	seen := make(map[string]struct{}, MaxSuggestions)
	suggestions := make([]string, 0, MaxSuggestions)
	add := func(s string) {
		if _, dup := seen[s]; dup {
			return
		}
		if reserved.ValidateAlias(s) != nil || a.filter.IsReserved(s) {
			return
		}
		seen[s] = struct{}{}
		suggestions = append(suggestions, s)
	}

	for _, p := range patterns {
		if len(suggestions) == MaxSuggestions {
			break
		}
		add(p)
	}

	// Random fill for anything the patterns could not provide. Bounded so an
	// alias near the length limit cannot loop forever.
	for i := 0; len(suggestions) < MaxSuggestions && i < 50; i++ {
		suffix := 1000 + rand.IntN(98999)
		if rand.IntN(2) == 0 {
			add(fmt.Sprintf("%s-%d", base, suffix))
		} else {
			add(fmt.Sprintf("%s%d", base, suffix))
		}
	}

	return suggestions
}
