package identity

import "testing"

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "simple", input: "alice", want: "alice", ok: true},
		{name: "uppercase normalized", input: "Alice", want: "alice", ok: true},
		{name: "surrounding space trimmed", input: "  bob  ", want: "bob", ok: true},
		{name: "digits and underscore", input: "user_42", want: "user_42", ok: true},
		{name: "min length", input: "ab", want: "ab", ok: true},
		{name: "max length", input: "abcdefghijklmnopqrstuvwx", want: "abcdefghijklmnopqrstuvwx", ok: true},
		{name: "too short", input: "a", ok: false},
		{name: "too long", input: "abcdefghijklmnopqrstuvwxy", ok: false},
		{name: "empty", input: "", ok: false},
		{name: "space inside", input: "al ice", ok: false},
		{name: "punctuation", input: "alice!", ok: false},
		{name: "hyphen", input: "al-ice", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateUsername(tc.input)
			if tc.ok {
				if err != nil {
					t.Fatalf("ValidateUsername(%q) error: %v", tc.input, err)
				}
				if got != tc.want {
					t.Fatalf("ValidateUsername(%q) = %q, want %q", tc.input, got, tc.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateUsername(%q) succeeded, want error", tc.input)
			}
			if !IsInvalidInput(err) {
				t.Fatalf("ValidateUsername(%q) error kind = %v, want invalid_input", tc.input, err)
			}
		})
	}
}

func TestNormalizeUsernameIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	if NormalizeUsername("ALICE") != NormalizeUsername("alice") {
		t.Fatal("normalization should collapse case")
	}
}
