package metadata

import "testing"

func TestParsePathRoot(t *testing.T) {
	for _, s := range []string{"/", ""} {
		p := ParsePath(s)
		if !p.IsRoot() {
			t.Errorf("ParsePath(%q) = %v, want root", s, p)
		}
	}
}

func TestParsePathAndString(t *testing.T) {
	p := ParsePath("/a/b/c")
	if p.String() != "/a/b/c" {
		t.Fatalf("String() = %q", p.String())
	}
	if p.Base() != "c" {
		t.Fatalf("Base() = %q", p.Base())
	}
	if p.Parent().String() != "/a/b" {
		t.Fatalf("Parent() = %q", p.Parent().String())
	}
}

func TestHasPrefix(t *testing.T) {
	x := ParsePath("/x")
	sub := ParsePath("/x/sub")
	if !x.HasPrefix(sub) {
		t.Fatal("expected /x to be a prefix of /x/sub")
	}
	if sub.HasPrefix(x) {
		t.Fatal("did not expect /x/sub to be a prefix of /x")
	}
}
