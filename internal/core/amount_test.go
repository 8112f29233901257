package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
		ok   bool
	}{
		{"1000", 1000, true},
		{"12.34", 12.34, true},
		{"12,34", 12.34, true},
		{" 7 ", 7, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseAmount(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err != ErrInvalidAmount {
			t.Fatalf("ParseAmount(%q) expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestAmountString(t *testing.T) {
	if got := Amount(1000).String(); got != "1000" {
		t.Fatalf("String() = %q", got)
	}
	if got := Amount(12.5).String(); got != "12.5" {
		t.Fatalf("String() = %q", got)
	}
}

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"Abcdef":  true,
		"abcdef":  false,
		"ABCDEF":  false,
		"Abcde":   false,
		"aB3$xyz": true,
		"":        false,
	}
	for pw, ok := range cases {
		err := ValidatePassword(pw)
		if ok && err != nil {
			t.Fatalf("ValidatePassword(%q) unexpected error %v", pw, err)
		}
		if !ok && err != ErrWeakPassword {
			t.Fatalf("ValidatePassword(%q) expected ErrWeakPassword, got %v", pw, err)
		}
	}
}
