package storagenode

import "testing"

func TestMasterDiscoveryDefaultsToFirstConfigured(t *testing.T) {
	d := NewMasterDiscovery([]string{"http://a", "http://b"}, nil)
	if d.CurrentMaster() != "http://a" {
		t.Fatalf("CurrentMaster = %q, want http://a", d.CurrentMaster())
	}
}

func TestMasterDiscoveryAdvanceWraps(t *testing.T) {
	d := NewMasterDiscovery([]string{"http://a", "http://b"}, nil)
	d.advance()
	if d.CurrentMaster() != "http://b" {
		t.Fatalf("after one advance, CurrentMaster = %q, want http://b", d.CurrentMaster())
	}
	d.advance()
	if d.CurrentMaster() != "http://a" {
		t.Fatalf("after wrapping, CurrentMaster = %q, want http://a", d.CurrentMaster())
	}
}

func TestMasterDiscoveryEmptyConfigured(t *testing.T) {
	d := NewMasterDiscovery(nil, nil)
	if d.CurrentMaster() != "" {
		t.Fatalf("CurrentMaster with no configured name nodes = %q, want empty", d.CurrentMaster())
	}
}

func TestHTTPToWS(t *testing.T) {
	cases := map[string]string{
		"http://nn-a:8080":  "ws://nn-a:8080",
		"https://nn-a:8443": "wss://nn-a:8443",
	}
	for in, want := range cases {
		if got := httpToWS(in); got != want {
			t.Errorf("httpToWS(%q) = %q, want %q", in, got, want)
		}
	}
}
