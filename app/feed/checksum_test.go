package feed

import (
	"bytes"
	"strings"
	"testing"
)

func TestChecksum(t *testing.T) {
	// sha256 of the empty input
	if got := Checksum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Expected empty-input digest, got: %s", got)
	}

	a := Checksum([]byte(sampleATF))
	if len(a) != 64 {
		t.Errorf("Expected 64 hex characters, got: %d", len(a))
	}
	if a != Checksum([]byte(sampleATF)) {
		t.Error("Expected checksum to be deterministic")
	}
	if a == Checksum([]byte(strings.Replace(sampleATF, "10%", "11%", 1))) {
		t.Error("Expected checksum to change with content")
	}

	streamed, err := ChecksumReader(bytes.NewReader([]byte(sampleATF)))
	if err != nil {
		t.Fatalf("Failed to hash reader: %v", err)
	}
	if streamed != a {
		t.Errorf("Expected streamed checksum %s, got: %s", a, streamed)
	}
}
