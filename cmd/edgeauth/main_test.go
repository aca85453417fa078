package main

import (
	"strings"
	"testing"

	"github.com/wavecast/edgeauth/security"
)

func TestWriteGeneratedKey(t *testing.T) {
	var out strings.Builder
	if err := writeGeneratedKey(&out); err != nil {
		t.Fatalf("writeGeneratedKey() error = %v", err)
	}

	encoded := strings.TrimSpace(out.String())
	key, err := security.KeyFromBase64(encoded)
	if err != nil {
		t.Fatalf("generated key does not decode: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}

	// A second key must differ from the first.
	var again strings.Builder
	if err := writeGeneratedKey(&again); err != nil {
		t.Fatalf("writeGeneratedKey() error = %v", err)
	}
	if again.String() == out.String() {
		t.Error("two generated keys are identical")
	}
}
