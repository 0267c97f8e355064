// Package password validates and generates credentials against a
// per-tenant password policy.
package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/Ashrafnet/CommunityServer/internal/apperr"
)

const (
	// MaxMinLength caps the configurable minimum length.
	MaxMinLength = 128

	baseAlphabet    = "1234567890mnbasdflkjqwerpoiqweyuvcxnzhdkqpsdk"
	digitAlphabet   = "1234567890"
	upperAlphabet   = "MNBASDFLKJQWERPOIQWE"
	specialAlphabet = "@%&;"
)

// Settings is the password policy of one tenant.
type Settings struct {
	MinLength   int  `json:"min_length"`
	UpperCase   bool `json:"upper_case"`
	Digits      bool `json:"digits"`
	SpecSymbols bool `json:"spec_symbols"`
}

// DefaultSettings is applied when a tenant has no stored policy.
func DefaultSettings() Settings {
	return Settings{MinLength: 6}
}

// Validate reports whether the settings are usable for checks and generation.
func (s Settings) Validate() error {
	if s.MinLength < 1 || s.MinLength > MaxMinLength {
		return apperr.WithMetadata(apperr.CodeInvalidSettings,
			fmt.Sprintf("min length must be between 1 and %d", MaxMinLength),
			map[string]string{"min_length": fmt.Sprint(s.MinLength)})
	}
	return nil
}

// Rule names one requirement of the policy.
type Rule string

const (
	RuleMinLength   Rule = "min_length"
	RuleUpperCase   Rule = "upper_case"
	RuleDigits      Rule = "digits"
	RuleSpecSymbols Rule = "spec_symbols"
	RuleSingleLine  Rule = "single_line"
)

func (s Settings) describeRule(r Rule) string {
	switch r {
	case RuleMinLength:
		return fmt.Sprintf("at least %d characters", s.MinLength)
	case RuleUpperCase:
		return "an upper-case letter"
	case RuleDigits:
		return "a digit"
	case RuleSpecSymbols:
		return "a special symbol"
	case RuleSingleLine:
		return "no line breaks"
	}
	return string(r)
}

// isWordRune matches the regular-expression \w class: letters, non-spacing
// marks, decimal digits and connector punctuation.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) ||
		unicode.Is(unicode.Mn, r) ||
		unicode.Is(unicode.Nd, r) ||
		unicode.Is(unicode.Pc, r)
}

// Unmet returns every rule the password fails, in policy order.
// One trailing line feed is tolerated and counts as a symbol; any other
// line feed breaks the password.
func Unmet(password string, s Settings) []Rule {
	body, trailingLF := strings.CutSuffix(password, "\n")
	var (
		length               int
		digit, upper, broken bool
	)
	special := trailingLF
	for _, r := range body {
		length++
		switch {
		case r == '\n':
			broken = true
		case unicode.Is(unicode.Nd, r):
			digit = true
		case unicode.Is(unicode.Lu, r):
			upper = true
		}
		if !isWordRune(r) {
			special = true
		}
	}

	var unmet []Rule
	if length < s.MinLength {
		unmet = append(unmet, RuleMinLength)
	}
	if s.UpperCase && !upper {
		unmet = append(unmet, RuleUpperCase)
	}
	if s.Digits && !digit {
		unmet = append(unmet, RuleDigits)
	}
	if s.SpecSymbols && !special {
		unmet = append(unmet, RuleSpecSymbols)
	}
	if broken {
		unmet = append(unmet, RuleSingleLine)
	}
	return unmet
}

// Validate reports whether password is non-empty and satisfies every rule.
func Validate(password string, s Settings) bool {
	return password != "" && len(Unmet(password, s)) == 0
}

// Check returns ErrEmptyCredential for an empty password and a
// PolicyViolation listing the unmet rules when Validate fails.
func Check(password string, s Settings) error {
	if password == "" {
		return apperr.ErrEmptyCredential
	}
	unmet := Unmet(password, s)
	if len(unmet) == 0 {
		return nil
	}
	names := make([]string, len(unmet))
	texts := make([]string, len(unmet))
	for i, r := range unmet {
		names[i] = string(r)
		texts[i] = s.describeRule(r)
	}
	return apperr.WithMetadata(apperr.CodePolicyViolation,
		"password does not meet policy: "+strings.Join(texts, ", "),
		map[string]string{
			"unmet":  strings.Join(names, ","),
			"policy": Describe(s),
		})
}

// Describe renders the policy as a help string.
func Describe(s Settings) string {
	rules := []string{s.describeRule(RuleMinLength)}
	if s.UpperCase {
		rules = append(rules, s.describeRule(RuleUpperCase))
	}
	if s.Digits {
		rules = append(rules, s.describeRule(RuleDigits))
	}
	if s.SpecSymbols {
		rules = append(rules, s.describeRule(RuleSpecSymbols))
	}
	return "Password must contain " + strings.Join(rules, ", ")
}

// Generate builds a password that satisfies s: MinLength characters from
// the base alphabet followed by one digit, one upper-case letter and one
// special symbol for each enabled rule. The class characters always sit at
// the tail.
func Generate(s Settings) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(s.MinLength + 3)

	if err := draw(&b, s.MinLength, baseAlphabet); err != nil {
		return "", err
	}
	if s.Digits {
		if err := draw(&b, 1, digitAlphabet); err != nil {
			return "", err
		}
	}
	if s.UpperCase {
		if err := draw(&b, 1, upperAlphabet); err != nil {
			return "", err
		}
	}
	if s.SpecSymbols {
		if err := draw(&b, 1, specialAlphabet); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func draw(b *strings.Builder, n int, alphabet string) error {
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return nil
}
