package service

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go-auth-server/internal/model"
)

// Rule codes reported by PolicyViolation, in evaluation order.
const (
	RuleMinLength       = "min_length"
	RuleMaxLength       = "max_length"
	RuleRequireAlpha    = "require_alpha"
	RuleRequireLower    = "require_lower"
	RuleRequireUpper    = "require_upper"
	RuleRequireDigit    = "require_digit"
	RuleRequireSpecial  = "require_special"
	RuleWhitespace      = "whitespace_not_allowed"
	RuleNonASCII        = "non_ascii_not_allowed"
	RuleDictionaryWord  = "dictionary_word"
	RuleCommonPassword  = "common_password"
	minDictionaryLength = 4
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

//go:embed data/words.txt
var wordsFile string

//go:embed data/common_passwords.txt
var commonPasswordsFile string

var (
	dictionaryWords = loadWordList(wordsFile, minDictionaryLength)
	commonPasswords = toSet(loadWordList(commonPasswordsFile, 1))
)

// PolicyViolation names the first rule a password failed.
type PolicyViolation struct {
	Rule string
}

func (v *PolicyViolation) Error() string {
	return fmt.Sprintf("password violates %s", v.Rule)
}

// ValidatePassword evaluates the rules in a fixed order and stops at the first failure.
func ValidatePassword(p *model.PasswordPolicy, password string) error {
	if rule := firstViolation(p, password); rule != "" {
		return &PolicyViolation{Rule: rule}
	}
	return nil
}

func firstViolation(p *model.PasswordPolicy, password string) string {
	length := utf8.RuneCountInString(password)
	switch {
	case p.MinLength > 0 && length < p.MinLength:
		return RuleMinLength
	case p.MaxLength > 0 && length > p.MaxLength:
		return RuleMaxLength
	case p.RequireAlpha && !strings.ContainsFunc(password, unicode.IsLetter):
		return RuleRequireAlpha
	case p.RequireLower && !strings.ContainsFunc(password, unicode.IsLower):
		return RuleRequireLower
	case p.RequireUpper && !strings.ContainsFunc(password, unicode.IsUpper):
		return RuleRequireUpper
	case p.RequireDigit && !strings.ContainsFunc(password, unicode.IsDigit):
		return RuleRequireDigit
	case p.RequireSpecial && !strings.ContainsAny(password, specialChars):
		return RuleRequireSpecial
	case !p.AllowWhitespace && strings.ContainsFunc(password, unicode.IsSpace):
		return RuleWhitespace
	case !p.AllowUnicode && !isASCII(password):
		return RuleNonASCII
	case !p.AllowDictionaryWords && containsDictionaryWord(password):
		return RuleDictionaryWord
	case isCommonPassword(p, password):
		return RuleCommonPassword
	}
	return ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func containsDictionaryWord(password string) bool {
	lower := strings.ToLower(password)
	for _, w := range dictionaryWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func isCommonPassword(p *model.PasswordPolicy, password string) bool {
	for _, b := range p.Blacklist {
		if password == b {
			return true
		}
	}
	_, common := commonPasswords[strings.ToLower(password)]
	return common
}

func loadWordList(raw string, minLength int) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		w := strings.ToLower(strings.TrimSpace(line))
		if utf8.RuneCountInString(w) >= minLength {
			out = append(out, w)
		}
	}
	return out
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
