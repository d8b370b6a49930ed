package config

import (
	"errors"
	"strings"
)

// Parse reads JSONC configuration content on top of base.
//
// Content that is empty or holds only comments yields base unchanged.
func Parse(content string, base Config) (Config, []Warning, error) {
	stripped, err := stripJSONCComments(content)
	if err != nil {
		return Config{}, nil, err
	}

	trimmed := strings.TrimSpace(stripped)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}
	if !strings.HasPrefix(trimmed, "{") {
		return Config{}, nil, errors.New("config must be a JSONC object")
	}

	return parseJSONC(content, base)
}
