// Package wire implements the mutation-batch wire encoding between a
// master name node and its followers (spec section 4.2), and the
// structured-RPC envelope client and name nodes exchange (spec
// section 6). Payloads are msgpack, the library this lineage already
// reaches for wherever it needs compact structured encoding; every
// fanout batch is zstd-compressed before it goes to a follower.
package wire

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"distfs/internal/store"
)

// NullSentinel is substituted for a Go nil value on the wire, since the
// transport does not carry a native null distinguishable from the empty
// string. It is restored to nil on decode. See spec section 4.2.
const NullSentinel = "\x00null-parent\x00"

// Batch is the wire form of a mutation batch: an ordered list of
// store.Record, string-keyed and null-sentinel-substituted.
type Batch struct {
	Records []store.Record
}

// EncodeBatch serializes a mutation batch for transport to a follower.
func EncodeBatch(records []store.Record) ([]byte, error) {
	wireRecords := make([]store.Record, len(records))
	for i, r := range records {
		wireRecords[i] = store.Record{
			Op:         r.Op,
			Collection: r.Collection,
			Selector:   substituteNulls(r.Selector),
			Payload:    substituteNulls(r.Payload),
		}
	}
	data, err := msgpack.Marshal(wireRecords)
	if err != nil {
		return nil, fmt.Errorf("encode mutation batch: %w", err)
	}
	return data, nil
}

// DecodeBatch restores a mutation batch from its wire form, substituting
// nil back in for NullSentinel values.
func DecodeBatch(data []byte) ([]store.Record, error) {
	var wireRecords []store.Record
	if err := msgpack.Unmarshal(data, &wireRecords); err != nil {
		return nil, fmt.Errorf("decode mutation batch: %w", err)
	}
	for i, r := range wireRecords {
		wireRecords[i].Selector = restoreNulls(r.Selector)
		wireRecords[i].Payload = restoreNulls(r.Payload)
	}
	return wireRecords, nil
}

func substituteNulls(d store.Doc) store.Doc {
	if d == nil {
		return nil
	}
	out := make(store.Doc, len(d))
	for k, v := range d {
		if v == nil {
			out[k] = NullSentinel
			continue
		}
		out[k] = v
	}
	return out
}

func restoreNulls(d store.Doc) store.Doc {
	if d == nil {
		return nil
	}
	out := make(store.Doc, len(d))
	for k, v := range d {
		if s, ok := v.(string); ok && s == NullSentinel {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return out
}

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

// Compress zstd-compresses an encoded batch before it goes over the
// wire to a follower. Fanout batches can be large (a recursive rmr or a
// multi-chunk put_file rewrites many documents at once); compressing
// them costs little and shrinks what's usually a very repetitive
// document shape.
func Compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress mutation batch: %w", err)
	}
	return out, nil
}

// Marshal encodes an arbitrary RPC request/response value as msgpack,
// the envelope format for every client<->master procedure call.
// Master->follower batches go through EncodeBatch and Compress instead.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode rpc payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an msgpack RPC envelope into v.
func Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode rpc payload: %w", err)
	}
	return nil
}
