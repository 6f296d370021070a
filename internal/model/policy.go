package model

import "time"

type PasswordPolicy struct {
	ID                   string    `json:"id"`
	MinLength            int       `json:"min_length" validate:"gte=0"`
	MaxLength            int       `json:"max_length" validate:"gte=0"`
	RequireAlpha         bool      `json:"require_alpha"`
	RequireLower         bool      `json:"require_lower"`
	RequireUpper         bool      `json:"require_upper"`
	RequireDigit         bool      `json:"require_digit"`
	RequireSpecial       bool      `json:"require_special"`
	AllowWhitespace      bool      `json:"allow_whitespace"`
	AllowUnicode         bool      `json:"allow_unicode"`
	AllowDictionaryWords bool      `json:"allow_dictionary_words"`
	Blacklist            []string  `json:"blacklist,omitempty"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
}

// DefaultPasswordPolicy mirrors the defaults a new policy starts from.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:       8,
		MaxLength:       64,
		AllowWhitespace: true,
		AllowUnicode:    true,
	}
}
