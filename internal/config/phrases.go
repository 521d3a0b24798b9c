package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoginPhrases holds the text patterns the login automaton matches against
// backend output. The backend's login protocol is line-oriented natural
// language, not a structured API, so matching is heuristic and the phrase
// sets are configuration: MUD customizations routinely reword them.
type LoginPhrases struct {
	// Failure phrases indicate a rejected connect/create attempt
	// (unknown account, bad password).
	Failure []string `yaml:"failure"`
	// Success phrases indicate the backend dropped us into the game
	// (room description, connection announcement).
	Success []string `yaml:"success"`
	// Created phrases indicate a create command provisioned a new account.
	Created []string `yaml:"created"`
}

// DefaultLoginPhrases matches Evennia's stock UnloggedinCmdSet wording.
func DefaultLoginPhrases() LoginPhrases {
	return LoginPhrases{
		Failure: []string{
			"could not find",
			"no account",
			"wrong password",
			"incorrect password",
			"enter a valid",
			"not a valid account",
			"you have entered an invalid",
		},
		Success: []string{
			"you become",
			"exits:",
			"you see:",
		},
		Created: []string{
			"created",
		},
	}
}

// LoadLoginPhrases reads phrase overrides from a YAML file. Lists absent
// from the file keep their defaults; an empty path returns the defaults.
func LoadLoginPhrases(path string) (LoginPhrases, error) {
	phrases := DefaultLoginPhrases()
	if path == "" {
		return phrases, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return phrases, fmt.Errorf("read phrases file: %w", err)
	}

	var overrides LoginPhrases
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return phrases, fmt.Errorf("parse phrases file %s: %w", path, err)
	}

	if len(overrides.Failure) > 0 {
		phrases.Failure = overrides.Failure
	}
	if len(overrides.Success) > 0 {
		phrases.Success = overrides.Success
	}
	if len(overrides.Created) > 0 {
		phrases.Created = overrides.Created
	}
	return phrases, nil
}

// IsFailure reports whether the output burst contains a known login
// failure phrase. Matching is case-insensitive substring search.
func (p LoginPhrases) IsFailure(output string) bool {
	return containsAny(output, p.Failure)
}

// IsSuccess reports whether the output burst looks like a completed login.
func (p LoginPhrases) IsSuccess(output string) bool {
	return containsAny(output, p.Success)
}

// IsCreated reports whether the output burst announces account creation.
func (p LoginPhrases) IsCreated(output string) bool {
	return containsAny(output, p.Created)
}

func containsAny(output string, phrases []string) bool {
	low := strings.ToLower(output)
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(low, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
