package engine

import "github.com/concordkv/concordkv/internal/lsm"

// LSMEngine adapts an *lsm.Tree to the Engine contract. It is the one
// concrete variant in the sum type that the spec calls "the core of this
// specification" (spec §1): every other backend satisfies the same
// contract but is specified only by it.
type LSMEngine struct {
	Unsupported
	tree *lsm.Tree
}

// NewLSMEngine wraps an already-open Tree.
func NewLSMEngine(tree *lsm.Tree) *LSMEngine {
	return &LSMEngine{tree: tree}
}

func (e *LSMEngine) Put(key, value []byte) error    { return e.tree.Put(key, value) }
func (e *LSMEngine) Get(key []byte) ([]byte, error) { return e.tree.Get(key) }
func (e *LSMEngine) Delete(key []byte) error        { return e.tree.Delete(key) }

// Update shares Put's upsert semantics: a MemTable entry is always
// replaced by a newer sequence for the same key, so there is no separate
// "must already exist" code path to enforce.
func (e *LSMEngine) Update(key, value []byte) error { return e.tree.Put(key, value) }

func (e *LSMEngine) Count() (int64, error)       { return e.tree.Count() }
func (e *LSMEngine) MemoryUsage() (int64, error) { return e.tree.MemoryUsage() }

func (e *LSMEngine) BatchSet(kvs []KV) error {
	b := lsm.NewBatch(false, false)
	for _, kv := range kvs {
		b.Put(kv.Key, kv.Value)
	}
	_, err := e.tree.CommitBatch(b, true, false)
	return err
}

func (e *LSMEngine) Flush() error   { return e.tree.Flush() }
func (e *LSMEngine) Compact() error { e.tree.Compact(); return nil }
func (e *LSMEngine) Sync() error    { return e.tree.Sync() }

func (e *LSMEngine) Type() Type   { return LSM }
func (e *LSMEngine) Close() error { return e.tree.Close() }

// Stats exposes the underlying Tree's stats for internal/metrics.
func (e *LSMEngine) Stats() lsm.Stats { return e.tree.Stats() }
