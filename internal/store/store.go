// Package store defines the abstract document database the master name
// node persists its metadata into. Spec section 1 explicitly treats the
// underlying document database as an external collaborator ("abstract
// document store supporting insert/update/delete with atomic
// single-document updates"); this package is the thin interface that
// external collaborator is accessed through, plus two concrete
// implementations: an in-memory fake for tests and a modernc.org/sqlite
// backend for a real process.
package store

import (
	"context"
	"fmt"
)

// Op is one kind of document mutation, matching the op vocabulary of
// spec section 4.1's mutation batch: insert, updateOne, updateMany,
// deleteOne, deleteMany.
type Op string

const (
	OpInsert     Op = "insert"
	OpUpdateOne  Op = "updateOne"
	OpUpdateMany Op = "updateMany"
	OpDeleteOne  Op = "deleteOne"
	OpDeleteMany Op = "deleteMany"
)

// Doc is a loosely-typed document. Values are whatever JSON-compatible
// types the caller stored; callers are responsible for decoding them
// back into metadata types.
type Doc map[string]any

// Record is one operation within a mutation batch: what to do, against
// which collection, matched by which selector, with which payload.
// Insert ignores Selector; DeleteOne/DeleteMany ignore Payload.
type Record struct {
	Op         Op
	Collection string
	Selector   Doc
	Payload    Doc
}

// Store is the document-store abstraction every name node holds its own
// instance of. UpdateOne and DeleteOne apply to at most one matching
// document, atomically; UpdateMany/DeleteMany apply to every match.
type Store interface {
	Insert(ctx context.Context, collection string, doc Doc) error
	UpdateOne(ctx context.Context, collection string, selector, payload Doc) error
	UpdateMany(ctx context.Context, collection string, selector, payload Doc) error
	DeleteOne(ctx context.Context, collection string, selector Doc) error
	DeleteMany(ctx context.Context, collection string, selector Doc) error
	FindOne(ctx context.Context, collection string, selector Doc) (Doc, bool, error)
	FindMany(ctx context.Context, collection string, selector Doc) ([]Doc, error)
}

// Apply applies every record of a mutation batch, in order, against s.
// This is the single entry point both the master (applying its own
// mutation locally) and a follower (applying a received batch) use, so
// that local-apply and follower-apply are guaranteed to mean the same
// thing (spec section 4.2: "the stored form on the follower matches the
// master's stored form").
func Apply(ctx context.Context, s Store, records []Record) error {
	for _, r := range records {
		var err error
		switch r.Op {
		case OpInsert:
			err = s.Insert(ctx, r.Collection, r.Payload)
		case OpUpdateOne:
			err = s.UpdateOne(ctx, r.Collection, r.Selector, r.Payload)
		case OpUpdateMany:
			err = s.UpdateMany(ctx, r.Collection, r.Selector, r.Payload)
		case OpDeleteOne:
			err = s.DeleteOne(ctx, r.Collection, r.Selector)
		case OpDeleteMany:
			err = s.DeleteMany(ctx, r.Collection, r.Selector)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// matches reports whether doc contains every key/value pair in selector.
// An empty selector matches everything. Values are compared by their
// formatted representation rather than with "==" because the sqlite
// backend round-trips values through JSON (an int selector becomes a
// float64 document value); formatting both sides avoids spurious
// mismatches while keeping selectors scalar-only, which is all the
// mutation-batch encoding ever needs.
func matches(doc, selector Doc) bool {
	for k, v := range selector {
		dv, ok := doc[k]
		if !ok || fmt.Sprint(dv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}
