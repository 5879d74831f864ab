package loopop

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/arthur-debert/loopop/pkg/loopop/config"
)

func TestNewIDGenerator(t *testing.T) {
	t.Run("uuid", func(t *testing.T) {
		for _, scheme := range []string{"", config.IDSchemeUUID} {
			gen, err := NewIDGenerator(scheme)
			if err != nil {
				t.Fatalf("scheme %q: %v", scheme, err)
			}
			id := string(gen("purge", "/cache"))
			if !strings.HasPrefix(id, "purge-") {
				t.Fatalf("ID should start with the kind, got: %s", id)
			}
			if _, err := uuid.Parse(strings.TrimPrefix(id, "purge-")); err != nil {
				t.Errorf("ID suffix should be a UUID, got: %s (%v)", id, err)
			}
		}
	})

	t.Run("sequence", func(t *testing.T) {
		gen, err := NewIDGenerator(config.IDSchemeSequence)
		if err != nil {
			t.Fatal(err)
		}
		if id := gen("recursive-delete", "/tmp/a"); id != "recursive-delete-1" {
			t.Errorf("Expected 'recursive-delete-1', got: %s", id)
		}
		if id := gen("reachability", "example.com"); id != "reachability-2" {
			t.Errorf("Expected 'reachability-2', got: %s", id)
		}

		other, _ := NewIDGenerator(config.IDSchemeSequence)
		if id := other("reachability", "example.com"); id != "reachability-1" {
			t.Errorf("generators must not share a counter, got: %s", id)
		}
	})

	t.Run("hash", func(t *testing.T) {
		gen, err := NewIDGenerator(config.IDSchemeHash)
		if err != nil {
			t.Fatal(err)
		}
		id1, id2 := string(gen("reachability", "example.com")), string(gen("reachability", "example.com"))
		if id1 == id2 {
			t.Error("hash IDs should be unique")
		}
		parts := strings.Split(id1, "-")
		if len(parts) != 3 || parts[0] != "reachability" || len(parts[1]) != 8 {
			t.Errorf("ID should have format 'kind-hash-seq', got: %s", id1)
		}
		if !strings.HasPrefix(id2, parts[0]+"-"+parts[1]+"-") {
			t.Errorf("same subject should share the hash, got %s and %s", id1, id2)
		}
		if other := string(gen("reachability", "example.org")); strings.HasPrefix(other, parts[0]+"-"+parts[1]) {
			t.Errorf("different subjects should not share the hash, got %s", other)
		}
	})

	t.Run("timestamp", func(t *testing.T) {
		gen, err := NewIDGenerator(config.IDSchemeTimestamp)
		if err != nil {
			t.Fatal(err)
		}
		id1, id2 := gen("purge", ""), gen("purge", "")
		if id1 == id2 {
			t.Error("timestamp IDs should be unique")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := NewIDGenerator("random"); err == nil {
			t.Error("Expected an error for an unknown scheme")
		}
	})
}

func TestNewIDGenerator_CoversEveryScheme(t *testing.T) {
	for _, scheme := range config.IDSchemes {
		if _, err := NewIDGenerator(scheme); err != nil {
			t.Errorf("scheme %q accepted by config but not by NewIDGenerator: %v", scheme, err)
		}
	}
}
