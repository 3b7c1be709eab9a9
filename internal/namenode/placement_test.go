package namenode

import (
	"math/rand"
	"testing"
)

func TestPlaceFileDeterministicPrimary(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	live := []string{"A", "B", "C"}
	// 10 bytes, chunk_size=4, replica_set=2 -> 3 chunks, as spec's
	// literal scenario 1 describes.
	placements, err := PlaceFile("f1", 10, 4, live, 2, rng)
	if err != nil {
		t.Fatalf("PlaceFile: %v", err)
	}
	if len(placements) != 3 {
		t.Fatalf("got %d placements, want 3", len(placements))
	}
	wantPrimary := []string{"A", "B", "C"}
	for i, p := range placements {
		if p.Primary != wantPrimary[i] {
			t.Errorf("chunk %d primary = %q, want %q", i, p.Primary, wantPrimary[i])
		}
		if len(p.Secondaries) != 1 {
			t.Errorf("chunk %d has %d secondaries, want 1", i, len(p.Secondaries))
		}
		if p.Secondaries[0] == p.Primary {
			t.Errorf("chunk %d secondary equals primary", i)
		}
	}
}

func TestPlaceFileRefusesInsufficientReplicas(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := PlaceFile("f1", 10, 4, []string{"A"}, 2, rng)
	if err == nil {
		t.Fatal("expected placement refusal when live SNs < replica factor")
	}
}

func TestChooseNewSecondaryExcludesGivenSet(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	live := []string{"A", "B", "C", "D"}
	exclude := map[string]bool{"A": true, "B": true}
	for i := 0; i < 20; i++ {
		sn, err := ChooseNewSecondary(live, exclude, rng)
		if err != nil {
			t.Fatalf("ChooseNewSecondary: %v", err)
		}
		if sn != "C" && sn != "D" {
			t.Fatalf("ChooseNewSecondary returned excluded SN %q", sn)
		}
	}
}

func TestChooseNewSecondaryFailsWhenNoneLeft(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	live := []string{"A", "B"}
	exclude := map[string]bool{"A": true, "B": true}
	if _, err := ChooseNewSecondary(live, exclude, rng); err == nil {
		t.Fatal("expected error when no candidate remains")
	}
}
