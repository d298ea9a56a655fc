package reserved

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gourl/shortcode/pkg/logger"
)

//go:embed default_lists.json
var defaultListsJSON []byte

// Lists is the on-disk form of the reserved and profanity word lists.
type Lists struct {
	// Categories groups reserved words by purpose (system_routes, api_endpoints, ...).
	Categories map[string][]string `json:"categories"`

	// ProfanityWords are rejected anywhere inside generated codes.
	ProfanityWords []string `json:"profanity_words"`

	// LeetspeakMappings maps a letter to its substitutes. Only the first
	// substitute of each letter is used to build variants.
	LeetspeakMappings map[string][]string `json:"leetspeak_mappings"`

	// MinSubstringLength is the shortest profanity word that is matched as a
	// substring. Shorter words only match exactly.
	MinSubstringLength int `json:"min_substring_length"`
}

// Words returns every reserved word across all categories.
func (l Lists) Words() []string {
	var words []string
	for _, ws := range l.Categories {
		words = append(words, ws...)
	}
	return words
}

// Parse decodes Lists from JSON.
func Parse(data []byte) (Lists, error) {
	var l Lists
	if err := json.Unmarshal(data, &l); err != nil {
		return Lists{}, fmt.Errorf("failed to parse reserved lists: %w", err)
	}
	if len(l.Categories) == 0 && len(l.ProfanityWords) == 0 {
		return Lists{}, errors.New("reserved lists are empty")
	}
	return l, nil
}

// DefaultLists returns the lists compiled into the binary.
func DefaultLists() Lists {
	l, err := Parse(defaultListsJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded reserved lists are invalid: %v", err))
	}
	return l
}

// LoadFile reads Lists from a JSON file.
func LoadFile(path string) (Lists, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lists{}, fmt.Errorf("failed to read reserved lists: %w", err)
	}
	return Parse(data)
}

// Load reads Lists from path, falling back to the embedded defaults when the
// path is empty, missing or invalid.
func Load(path string, log *logger.Logger) Lists {
	if path == "" {
		return DefaultLists()
	}

	l, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("reserved lists file not found, using defaults", "path", path)
		} else {
			log.Error("failed to load reserved lists, using defaults", "path", path, "error", err)
		}
		return DefaultLists()
	}

	log.Info("reserved lists loaded", "path", path, "words", len(l.Words()), "profanity", len(l.ProfanityWords))
	return l
}
