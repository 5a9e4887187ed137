package iterata

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// SignatureRule names one normalization of an (original, corrected) pair into
// a transformation signature. Match must be pure and deterministic: identical
// input pairs always produce identical signatures.
type SignatureRule struct {
	Name  string
	Match func(original, corrected string) (string, bool)
}

// InferSignature derives the transformation signature for a value pair by
// applying rules in order. When no rule matches, the exact pair itself is the
// signature, so dissimilar corrections never collapse together.
func InferSignature(rules []SignatureRule, original, corrected string) string {
	for _, rule := range rules {
		if sig, ok := rule.Match(original, corrected); ok {
			return sig
		}
	}
	return fmt.Sprintf("exact:%q->%q", original, corrected)
}

// DefaultSignatureRules returns the built-in normalization rules. Order
// matters: specific shapes are tested before generic ones.
func DefaultSignatureRules() []SignatureRule {
	return []SignatureRule{
		{Name: "identity", Match: func(o, c string) (string, bool) {
			if o == c {
				return "identity", true
			}
			return "", false
		}},
		{Name: "decimal_comma_to_dot", Match: func(o, c string) (string, bool) {
			if strings.Contains(o, ",") && strings.Contains(c, ".") && strings.ReplaceAll(o, ",", ".") == c {
				return "decimal_comma_to_dot", true
			}
			return "", false
		}},
		{Name: "decimal_dot_to_comma", Match: func(o, c string) (string, bool) {
			if strings.Contains(o, ".") && strings.Contains(c, ",") && strings.ReplaceAll(o, ".", ",") == c {
				return "decimal_dot_to_comma", true
			}
			return "", false
		}},
		{Name: "remove_spaces", Match: func(o, c string) (string, bool) {
			if strings.ReplaceAll(o, " ", "") == c {
				return "remove_spaces", true
			}
			return "", false
		}},
		{Name: "add_spaces", Match: func(o, c string) (string, bool) {
			if strings.ReplaceAll(c, " ", "") == o {
				return "add_spaces", true
			}
			return "", false
		}},
		{Name: "case_change", Match: matchCaseChange},
		{Name: "date_format_change", Match: matchDateFormatChange},
		{Name: "remove_punctuation", Match: func(o, c string) (string, bool) {
			if isAlphanumeric(c) && !isAlphanumeric(o) && stripNonAlphanumeric(o) == c {
				return "remove_punctuation", true
			}
			return "", false
		}},
		{Name: "remove_chars", Match: matchRemoveChars},
		{Name: "char_replace", Match: matchCharReplace},
	}
}

// matchCaseChange matches pairs that differ only in letter case.
func matchCaseChange(o, c string) (string, bool) {
	if o == c || !strings.EqualFold(o, c) {
		return "", false
	}
	switch {
	case c == strings.ToUpper(c):
		return "to_uppercase", true
	case c == strings.ToLower(c):
		return "to_lowercase", true
	case isTitleCase(c):
		return "to_titlecase", true
	default:
		return "case_change", true
	}
}

// matchDateFormatChange matches pairs that both look like dates with
// separators, e.g. "01/15/2024" -> "2024-01-15".
func matchDateFormatChange(o, c string) (string, bool) {
	if looksLikeDate(o) && looksLikeDate(c) {
		return "date_format_change", true
	}
	return "", false
}

func looksLikeDate(s string) bool {
	seps := strings.Count(s, "/") + strings.Count(s, "-")
	if seps < 2 {
		return false
	}
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '/' || r == '-':
		default:
			return false
		}
	}
	return digits >= 4
}

// matchRemoveChars matches pairs where the correction only removed
// characters. The signature names the removed character set so the same
// removal collapses across different literals.
func matchRemoveChars(o, c string) (string, bool) {
	if len(c) >= len(o) {
		return "", false
	}
	inOriginal := map[rune]bool{}
	for _, r := range o {
		inOriginal[r] = true
	}
	for _, r := range c {
		if !inOriginal[r] {
			return "", false
		}
	}

	inCorrected := map[rune]bool{}
	for _, r := range c {
		inCorrected[r] = true
	}
	var removed []string
	for r := range inOriginal {
		if !inCorrected[r] {
			removed = append(removed, string(r))
		}
	}
	if len(removed) == 0 {
		return "", false
	}
	sort.Strings(removed)
	return "remove_chars_" + strings.Join(removed, ","), true
}

// matchCharReplace matches equal-length pairs differing in a few positions.
func matchCharReplace(o, c string) (string, bool) {
	or, cr := []rune(o), []rune(c)
	if len(or) != len(cr) {
		return "", false
	}
	diff := 0
	for i := range or {
		if or[i] != cr[i] {
			diff++
		}
	}
	switch {
	case diff == 1:
		return "single_char_replace", true
	case diff > 1 && diff <= 3:
		return "few_chars_replace", true
	default:
		return "", false
	}
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func stripNonAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isTitleCase(s string) bool {
	for _, word := range strings.Fields(s) {
		runes := []rune(word)
		if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
			return false
		}
		for _, r := range runes[1:] {
			if unicode.IsUpper(r) {
				return false
			}
		}
	}
	return true
}
