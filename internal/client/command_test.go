package client

import "testing"

func TestParseKnownVerbs(t *testing.T) {
	cases := []struct {
		line string
		want any
	}{
		{"login alice hunter2", LoginCmd{Username: "alice", Password: "hunter2"}},
		{"mkdir /a", MkdirCmd{Path: "/a"}},
		{"mkdir /a parent", MkdirCmd{Path: "/a", CreateParents: true}},
		{"touch /a/f", TouchCmd{Path: "/a/f"}},
		{"ls /a", LsCmd{Path: "/a"}},
		{"rm /a/f", RmCmd{Path: "/a/f", Recursive: false}},
		{"rmr /a", RmCmd{Path: "/a", Recursive: true}},
		{"cp /a /b", CpCmd{Src: "/a", Dst: "/b"}},
		{"mv /a /b", MvCmd{Src: "/a", Dst: "/b"}},
		{"count /a", CountCmd{Path: "/a", Recursive: false}},
		{"countr /a", CountCmd{Path: "/a", Recursive: true}},
		{"du /a", DuCmd{Path: "/a"}},
		{"mkfs", MkfsCmd{}},
		{"status", StatusCmd{}},
		{"groupadd eng", GroupAddCmd{Name: "eng"}},
		{"groupdel eng", GroupDelCmd{Name: "eng"}},
		{"userdel alice", UserDelCmd{Name: "alice"}},
	}
	for _, c := range cases {
		got, err := Parse(c.line)
		if err != nil {
			t.Errorf("Parse(%q): %v", c.line, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %#v, want %#v", c.line, got, c.want)
		}
	}
}

func TestParseHeadTail(t *testing.T) {
	got, err := Parse("head 5 /a/f")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd, ok := got.(HeadTailCmd)
	if !ok || cmd.N != 5 || cmd.Path != "/a/f" || cmd.Tail {
		t.Fatalf("got %#v, want HeadTailCmd{N:5, Path:/a/f}", got)
	}

	got, err = Parse("tail 3 /a/f")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd, ok = got.(HeadTailCmd)
	if !ok || cmd.N != 3 || cmd.Path != "/a/f" || !cmd.Tail {
		t.Fatalf("got %#v, want HeadTailCmd{N:3, Path:/a/f, Tail:true}", got)
	}
}

func TestParseHeadTailRequiresPositiveN(t *testing.T) {
	if _, err := Parse("head /a/f"); err == nil {
		t.Fatal("expected InvalidSyntax error for head missing n")
	}
	if _, err := Parse("head 0 /a/f"); err == nil {
		t.Fatal("expected InvalidSyntax error for head with n=0")
	}
	if _, err := Parse("head -1 /a/f"); err == nil {
		t.Fatal("expected InvalidSyntax error for head with negative n")
	}
}

func TestHeadTailBytesNotLineOriented(t *testing.T) {
	content := []byte("HELLOWORLD")
	if got := string(headTailBytes(content, 5, false)); got != "HELLO" {
		t.Fatalf("head 5 = %q, want HELLO", got)
	}
	if got := string(headTailBytes(content, 3, true)); got != "RLD" {
		t.Fatalf("tail 3 = %q, want RLD", got)
	}
}

func TestHeadTailBytesClampsToContentLength(t *testing.T) {
	content := []byte("HI")
	if got := string(headTailBytes(content, 10, false)); got != "HI" {
		t.Fatalf("head 10 on 2-byte content = %q, want HI", got)
	}
	if got := string(headTailBytes(content, 10, true)); got != "HI" {
		t.Fatalf("tail 10 on 2-byte content = %q, want HI", got)
	}
}

func TestParseChattrVerbs(t *testing.T) {
	got, err := Parse("chown /a bob")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd, ok := got.(ChattrCmd); !ok || cmd.Attr != attrOwner || cmd.Value != "bob" {
		t.Fatalf("got %#v", got)
	}

	got, err = Parse("chmod /a 755")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd, ok := got.(ChattrCmd); !ok || cmd.Attr != attrMode || cmd.Value != "755" {
		t.Fatalf("got %#v", got)
	}
}

func TestParseEmptyLine(t *testing.T) {
	got, err := Parse("   ")
	if err != nil || got != nil {
		t.Fatalf("Parse(empty) = %#v, %v, want nil, nil", got, err)
	}
}

func TestParseUnknownVerb(t *testing.T) {
	if _, err := Parse("frobnicate /a"); err == nil {
		t.Fatal("expected CommandNotFound error")
	}
}

func TestParseWrongArgCount(t *testing.T) {
	if _, err := Parse("mv /a"); err == nil {
		t.Fatal("expected InvalidSyntax error for mv with one argument")
	}
}
