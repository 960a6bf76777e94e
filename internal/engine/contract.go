// Package engine defines the polymorphic abstraction every storage backend
// satisfies (spec §4.1) and the manager that switches between them. The
// source's struct-of-function-pointers vtable is replaced, per DESIGN NOTES
// §9, by a plain Go interface: a sum type over concrete engine variants
// rather than a runtime-built table of function pointers. Optional
// operations that a backend doesn't implement default to not_supported by
// embedding Unsupported, rather than a nil function-pointer check.
package engine

import "github.com/concordkv/concordkv/internal/errs"

// Type identifies one of the five interchangeable backends.
type Type int

const (
	Array Type = iota
	RBTree
	Hash
	BTree
	LSM
	numTypes
)

func (t Type) String() string {
	switch t {
	case Array:
		return "array"
	case RBTree:
		return "rbtree"
	case Hash:
		return "hash"
	case BTree:
		return "btree"
	case LSM:
		return "lsm"
	default:
		return "unknown"
	}
}

// KV is one key/value pair, used by BatchSet.
type KV struct {
	Key   []byte
	Value []byte
}

// Iterator walks a key range in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// Snapshot is a point-in-time read view.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Release()
}

// Txn is a backend-local transaction handle (spec §4.1:
// begin/commit/rollback_transaction). It is distinct from internal/txn's
// cross-engine 2PC participant hook, which wraps a Txn per engine.
type Txn interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Rollback() error
}

// Engine is the capability set every backend must satisfy (spec §4.1).
// Put/Get/Delete/Update/Count/MemoryUsage are mandatory; the rest are
// optional and a backend that does not implement one should embed
// Unsupported and let it answer not_supported, rather than leaving the
// method off the type (an interface, unlike a vtable, cannot have a "null"
// slot — Unsupported is the Go equivalent of one).
type Engine interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Update(key, value []byte) error
	Count() (int64, error)
	MemoryUsage() (int64, error)

	BatchSet(kvs []KV) error
	RangeScan(start, end []byte) (Iterator, error)
	CreateIterator() (Iterator, error)
	BeginTransaction() (Txn, error)
	CreateSnapshot() (Snapshot, error)
	Flush() error
	Compact() error
	Sync() error

	Type() Type
	Close() error
}

// Unsupported answers every optional operation with errs.NotSupported.
// Concrete engines embed it and override whichever operations they do
// implement (spec §4.1: "failure of an optional operation surfaces as
// not_supported rather than an error").
type Unsupported struct{}

func (Unsupported) BatchSet(kvs []KV) error {
	return errs.New(errs.NotSupported, "Engine.BatchSet", "not implemented by this backend")
}

func (Unsupported) RangeScan(start, end []byte) (Iterator, error) {
	return nil, errs.New(errs.NotSupported, "Engine.RangeScan", "not implemented by this backend")
}

func (Unsupported) CreateIterator() (Iterator, error) {
	return nil, errs.New(errs.NotSupported, "Engine.CreateIterator", "not implemented by this backend")
}

func (Unsupported) BeginTransaction() (Txn, error) {
	return nil, errs.New(errs.NotSupported, "Engine.BeginTransaction", "not implemented by this backend")
}

func (Unsupported) CreateSnapshot() (Snapshot, error) {
	return nil, errs.New(errs.NotSupported, "Engine.CreateSnapshot", "not implemented by this backend")
}

func (Unsupported) Flush() error {
	return errs.New(errs.NotSupported, "Engine.Flush", "not implemented by this backend")
}

func (Unsupported) Compact() error {
	return errs.New(errs.NotSupported, "Engine.Compact", "not implemented by this backend")
}

func (Unsupported) Sync() error {
	return errs.New(errs.NotSupported, "Engine.Sync", "not implemented by this backend")
}
