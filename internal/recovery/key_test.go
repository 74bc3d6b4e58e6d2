package recovery

import (
	"bytes"
	"strings"
	"testing"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/crypto"
)

func TestRecoveryKeyFormatRoundTrip(t *testing.T) {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i * 7)
	}

	exported := FormatRecoveryKey(key)
	parsed, err := ParseRecoveryKey(exported)
	if err != nil {
		t.Fatalf("ParseRecoveryKey: %v", err)
	}
	if !bytes.Equal(parsed, key) {
		t.Error("exported key did not round-trip")
	}
}

func TestRecoveryKeyFormatShape(t *testing.T) {
	key := bytes.Repeat([]byte{0xFF}, crypto.KeySize)
	exported := FormatRecoveryKey(key)

	if strings.ToUpper(exported) != exported {
		t.Error("exported key is not upper-case")
	}
	if got := len(strings.ReplaceAll(exported, "-", "")); got != 52 {
		t.Errorf("exported key has %d characters, want 52", got)
	}

	groups := strings.Split(exported, "-")
	if len(groups) != 11 {
		t.Fatalf("exported key has %d groups, want 11", len(groups))
	}
	for i, group := range groups {
		want := keyGroupSize
		if i == len(groups)-1 {
			want = 2
		}
		if len(group) != want {
			t.Errorf("group %d has length %d, want %d", i, len(group), want)
		}
		if strings.ContainsAny(group, "018") {
			// Base32's standard alphabet excludes 0, 1 and 8, which keeps
			// the exported form unambiguous when read back from paper.
			t.Errorf("group %q contains characters outside the alphabet", group)
		}
	}
}

func TestParseRecoveryKeyTolerance(t *testing.T) {
	key := bytes.Repeat([]byte{0x5A}, crypto.KeySize)
	exported := FormatRecoveryKey(key)

	variants := []string{
		strings.ToLower(exported),
		strings.ReplaceAll(exported, "-", " "),
		strings.ReplaceAll(exported, "-", ""),
		" " + exported + " ",
	}
	for _, variant := range variants {
		parsed, err := ParseRecoveryKey(variant)
		if err != nil {
			t.Errorf("ParseRecoveryKey(%q): %v", variant, err)
			continue
		}
		if !bytes.Equal(parsed, key) {
			t.Errorf("variant %q did not round-trip", variant)
		}
	}
}

func TestParseRecoveryKeyRejectsGarbage(t *testing.T) {
	for _, input := range []string{
		"",
		"abc",
		"!!!!-!!!!",
		FormatRecoveryKey(make([]byte, 16)), // wrong length
	} {
		if _, err := ParseRecoveryKey(input); !apperr.IsCode(err, apperr.CodeInvalidData) {
			t.Errorf("ParseRecoveryKey(%q): expected invalid_data, got %v", input, err)
		}
	}
}
