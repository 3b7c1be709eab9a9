package storagenode

// encodeLatin1 and decodeLatin1 round-trip an arbitrary byte slice
// through a Go string via Latin-1 (ISO-8859-1), where code point n maps
// to byte n for the full 0-255 range. This lets chunk payload bytes
// survive a form-encoded HTTP body (spec section 6) without a binary
// transport. golang.org/x/text/encoding/charmap would do the same thing
// through an io.Reader/Writer pipeline; a direct byte/rune mapping is
// simpler here because the whole payload is already in memory as a
// []byte at the call site, and Latin-1 is the identity mapping on bytes.
func encodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func decodeLatin1(s string) []byte {
	runes := []rune(s)
	out := make([]byte, len(runes))
	for i, r := range runes {
		out[i] = byte(r)
	}
	return out
}
