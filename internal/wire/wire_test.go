package wire

import (
	"reflect"
	"testing"

	"distfs/internal/store"
)

func TestEncodeDecodeBatchRoundTrip(t *testing.T) {
	batch := []store.Record{
		{Op: store.OpInsert, Collection: "fs", Payload: store.Doc{"id": "1", "parent_id": nil, "name": "/"}},
		{Op: store.OpUpdateOne, Collection: "fs", Selector: store.Doc{"id": "2"}, Payload: store.Doc{"size": int64(10)}},
	}

	data, err := EncodeBatch(batch)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	got, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if got[0].Payload["parent_id"] != nil {
		t.Fatalf("expected nil parent_id restored, got %v", got[0].Payload["parent_id"])
	}
	if got[0].Payload["name"] != "/" {
		t.Fatalf("unexpected payload: %v", got[0].Payload)
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	batch := []store.Record{
		{Op: store.OpInsert, Collection: "fs", Payload: store.Doc{"id": "1", "name": "/"}},
	}
	data, err := EncodeBatch(batch)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	compressed := Compress(data)
	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !reflect.DeepEqual(data, decompressed) {
		t.Fatal("compress/decompress did not round-trip")
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	type req struct {
		User string `json:"user"`
		Path string `json:"path"`
	}
	in := req{User: "root", Path: "/a"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out req
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}
