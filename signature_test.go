package iterata

import "testing"

func TestInferSignature(t *testing.T) {
	rules := DefaultSignatureRules()

	tests := []struct {
		name      string
		original  string
		corrected string
		want      string
	}{
		{"identity", "same", "same", "identity"},
		{"decimal comma to dot", "1234,56", "1234.56", "decimal_comma_to_dot"},
		{"decimal dot to comma", "1234.56", "1234,56", "decimal_dot_to_comma"},
		{"remove spaces", "1 234 567", "1234567", "remove_spaces"},
		{"add spaces", "1234567", "1 234 567", "add_spaces"},
		{"uppercase", "acme corp", "ACME CORP", "to_uppercase"},
		{"lowercase", "ACME", "acme", "to_lowercase"},
		{"titlecase", "acme corp", "Acme Corp", "to_titlecase"},
		{"date format", "01/15/2024", "2024-01-15", "date_format_change"},
		{"remove punctuation", "A.B.C.", "ABC", "remove_punctuation"},
		{"single char replace", "cat", "car", "single_char_replace"},
		{"few chars replace", "abcdef", "abczzf", "few_chars_replace"},
		{"exact fallback", "hello", "completely different", `exact:"hello"->"completely different"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferSignature(rules, tt.original, tt.corrected)
			if got != tt.want {
				t.Errorf("InferSignature(%q, %q) = %q, want %q", tt.original, tt.corrected, got, tt.want)
			}
		})
	}
}

func TestInferSignatureDeterministic(t *testing.T) {
	rules := DefaultSignatureRules()
	for i := 0; i < 10; i++ {
		if got := InferSignature(rules, "1.234,56", "1234.56"); got != InferSignature(rules, "1.234,56", "1234.56") {
			t.Fatal("signature derivation must be deterministic")
		}
	}
}

func TestInferSignatureCollapsesLiterals(t *testing.T) {
	// Structurally similar pairs collapse to the same signature even when
	// the literals differ.
	rules := DefaultSignatureRules()
	a := InferSignature(rules, "1234,56", "1234.56")
	b := InferSignature(rules, "99,9", "99.9")
	if a != b {
		t.Errorf("same transformation shape got different signatures: %q vs %q", a, b)
	}
}

func TestInferSignatureRemoveChars(t *testing.T) {
	rules := DefaultSignatureRules()
	got := InferSignature(rules, "abcxyz", "abc")
	if got != "remove_chars_x,y,z" {
		t.Errorf("got %q, want remove_chars_x,y,z", got)
	}
}

func TestInferSignatureCustomRules(t *testing.T) {
	rules := []SignatureRule{
		{Name: "always", Match: func(o, c string) (string, bool) {
			return "custom", true
		}},
	}
	if got := InferSignature(rules, "x", "y"); got != "custom" {
		t.Errorf("got %q, want custom", got)
	}
}
