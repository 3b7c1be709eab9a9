package metadata

import "testing"

func TestChunkName(t *testing.T) {
	if got := ChunkName("f1", 3); got != "f1_3" {
		t.Fatalf("ChunkName = %q, want f1_3", got)
	}
}

func TestSplitChunkName(t *testing.T) {
	id, seq, err := SplitChunkName("f1_3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "f1" || seq != 3 {
		t.Fatalf("got (%q, %d), want (f1, 3)", id, seq)
	}

	if _, _, err := SplitChunkName("noseparator"); err == nil {
		t.Fatal("expected error for malformed chunk name")
	}
}

func TestChunkCount(t *testing.T) {
	cases := []struct {
		size, chunkSize int64
		want            int
	}{
		{10, 4, 3},
		{8, 4, 2},
		{0, 4, 1},
		{1, 4, 1},
		{4, 4, 1},
	}
	for _, c := range cases {
		if got := ChunkCount(c.size, c.chunkSize); got != c.want {
			t.Errorf("ChunkCount(%d, %d) = %d, want %d", c.size, c.chunkSize, got, c.want)
		}
	}
}

func TestChunkByteRange(t *testing.T) {
	start, end := ChunkByteRange(10, 4, 2)
	if start != 8 || end != 10 {
		t.Fatalf("got (%d, %d), want (8, 10)", start, end)
	}
	start, end = ChunkByteRange(10, 4, 0)
	if start != 0 || end != 4 {
		t.Fatalf("got (%d, %d), want (0, 4)", start, end)
	}
}

func TestEncodeDecodeSNKey(t *testing.T) {
	sn := "10.0.0.1:8080"
	enc := EncodeSNKey(sn)
	if got := DecodeSNKey(enc); got != sn {
		t.Fatalf("round-trip got %q, want %q", got, sn)
	}
}
