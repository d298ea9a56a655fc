package reserved

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Custom alias length bounds.
const (
	MinAliasLength = 3
	MaxAliasLength = 50
)

// ErrInvalidAlias is the sentinel wrapped by every AliasError.
var ErrInvalidAlias = errors.New("invalid custom alias")

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// AliasError describes why a custom alias was rejected.
type AliasError struct {
	Alias  string
	Reason string
}

func (e *AliasError) Error() string {
	return fmt.Sprintf("invalid custom alias %q: %s", e.Alias, e.Reason)
}

func (e *AliasError) Unwrap() error {
	return ErrInvalidAlias
}

// ValidateAlias checks the syntax of a user-supplied alias. It does not
// consult the reserved set or any store.
func ValidateAlias(alias string) error {
	switch {
	case len(alias) < MinAliasLength:
		return &AliasError{Alias: alias, Reason: fmt.Sprintf("must be at least %d characters long", MinAliasLength)}
	case len(alias) > MaxAliasLength:
		return &AliasError{Alias: alias, Reason: fmt.Sprintf("must be no more than %d characters long", MaxAliasLength)}
	case !aliasPattern.MatchString(alias):
		return &AliasError{Alias: alias, Reason: "may only contain letters, numbers, hyphens and underscores, and must start with a letter or number"}
	case strings.Contains(alias, "--"), strings.Contains(alias, "__"),
		strings.Contains(alias, "-_"), strings.Contains(alias, "_-"):
		return &AliasError{Alias: alias, Reason: "cannot contain consecutive special characters"}
	case strings.HasSuffix(alias, "-"), strings.HasSuffix(alias, "_"):
		return &AliasError{Alias: alias, Reason: "cannot end with a special character"}
	}
	return nil
}
