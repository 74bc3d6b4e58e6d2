package crypto

import (
	"testing"

	"github.com/google/uuid"
)

type deterministicReader struct {
	next byte
}

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}

func TestSetRandomSource(t *testing.T) {
	reader := &deterministicReader{}
	SetRandomSource(reader)
	t.Cleanup(func() {
		SetRandomSource(nil)
	})

	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	SetRandomSource(&deterministicReader{})
	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	if string(salt1) != string(salt2) {
		t.Error("Identical sources should produce identical salts")
	}
}

func TestGenerateVerificationCode(t *testing.T) {
	reader := &deterministicReader{}
	SetRandomSource(reader)
	t.Cleanup(func() {
		SetRandomSource(nil)
	})

	code, err := GenerateVerificationCode()
	if err != nil {
		t.Fatalf("GenerateVerificationCode() error = %v", err)
	}

	if len(code) != VerificationCodeDigits {
		t.Fatalf("Code length = %d, want %d", len(code), VerificationCodeDigits)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("Code %q contains non-digit %q", code, r)
		}
	}
}

func TestGenerateVerificationCodeDistribution(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		code, err := GenerateVerificationCode()
		if err != nil {
			t.Fatalf("GenerateVerificationCode() error = %v", err)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 30 {
		t.Errorf("Expected mostly unique codes, got %d unique of 32", len(seen))
	}
}

func TestNewBlobID(t *testing.T) {
	id1, err := NewBlobID()
	if err != nil {
		t.Fatalf("NewBlobID() error = %v", err)
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Fatalf("Blob id %q is not a valid UUID: %v", id1, err)
	}

	id2, err := NewBlobID()
	if err != nil {
		t.Fatalf("NewBlobID() error = %v", err)
	}
	if id1 == id2 {
		t.Error("Consecutive blob ids should differ")
	}
}

func TestGenerateRecoveryKey(t *testing.T) {
	key, err := GenerateRecoveryKey()
	if err != nil {
		t.Fatalf("GenerateRecoveryKey() error = %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("Recovery key length = %d, want %d", len(key), KeySize)
	}
}

func TestRandomIndexBounds(t *testing.T) {
	reader := &deterministicReader{}

	for _, max := range []int{1, 2, 10, 256, 1000000} {
		for i := 0; i < 64; i++ {
			idx, err := randomIndex(reader, max)
			if err != nil {
				t.Fatalf("randomIndex(%d) error = %v", max, err)
			}
			if idx < 0 || idx >= max {
				t.Fatalf("randomIndex(%d) = %d out of range", max, idx)
			}
		}
	}

	if _, err := randomIndex(reader, 0); err == nil {
		t.Error("randomIndex(0) should fail")
	}
}
