package validation

import (
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		uuid    string
		wantErr bool
	}{
		{name: "valid uuid", uuid: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "opaque id", uuid: "user_42"},
		{name: "empty", uuid: "", wantErr: true},
		{name: "contains colon", uuid: "a:b", wantErr: true},
		{name: "contains wildcard", uuid: "a*", wantErr: true},
		{name: "contains space", uuid: "a b", wantErr: true},
		{name: "control character", uuid: "a\x01b", wantErr: true},
		{name: "too long", uuid: strings.Repeat("x", MaxIdentifierLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.uuid)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID(%q) error = %v, wantErr %v", tt.uuid, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDifficulty(t *testing.T) {
	for _, level := range DifficultyLevels {
		if err := ValidateDifficulty(level); err != nil {
			t.Errorf("ValidateDifficulty(%q) = %v, want nil", level, err)
		}
	}

	for _, bad := range []string{"", "a1", "D1", "easy", "A1 "} {
		if err := ValidateDifficulty(bad); err == nil {
			t.Errorf("ValidateDifficulty(%q) = nil, want error", bad)
		}
	}
}

func TestNormalizeWord(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Chat", "chat"},
		{"  chien  ", "chien"},
		{"MAISON", "maison"},
		{"déjà", "déjà"},
	}

	for _, tt := range tests {
		if got := NormalizeWord(tt.in); got != tt.want {
			t.Errorf("NormalizeWord(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateWords(t *testing.T) {
	got, err := ValidateWords([]string{"Chat", " chien "})
	if err != nil {
		t.Fatalf("ValidateWords: %v", err)
	}
	if len(got) != 2 || got[0] != "chat" || got[1] != "chien" {
		t.Errorf("normalized = %v, want [chat chien]", got)
	}

	if _, err := ValidateWords(nil); err == nil {
		t.Error("empty list should be rejected")
	}
	if _, err := ValidateWords([]string{"chat", "  "}); err == nil {
		t.Error("blank entry should be rejected")
	}
	if _, err := ValidateWords([]string{"a:b"}); err == nil {
		t.Error("reserved characters should be rejected")
	}
}
