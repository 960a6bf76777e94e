// Package txn implements the local half of a two-phase-commit transaction
// hook (spec §4.7, §9): a Participant stages a set of mutations against one
// engine, durably records a PREPARE vote, then applies (or discards) the
// staged ops on a COMMIT (or ABORT) decision from an external coordinator.
// The coordinator protocol itself is explicitly out of scope (spec §1); this
// package only guarantees that whatever decision eventually arrives can be
// replayed correctly after a crash between PREPARE and COMMIT/ABORT.
package txn

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/logging"
)

// State is a transaction's position in the 2PC state machine.
type State int

const (
	Active State = iota
	Prepared
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Prepared:
		return "prepared"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Op is one staged mutation, applied to Target only after Commit.
type Op struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// Target is the subset of engine.Engine a participant needs to apply a
// committed transaction. engine.Engine satisfies this directly.
type Target interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Txn is one in-flight (or resolved) transaction. Callers obtain one from
// Participant.Begin, stage ops with Put/Delete, then call Prepare followed
// by Commit or Rollback.
type Txn struct {
	ID    uuid.UUID
	state State
	ops   []Op
}

func (t *Txn) Put(key, value []byte) error {
	if t.state != Active {
		return errs.New(errs.TransactionAborted, "Txn.Put", "transaction is no longer active")
	}
	t.ops = append(t.ops, Op{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
	return nil
}

func (t *Txn) Delete(key []byte) error {
	if t.state != Active {
		return errs.New(errs.TransactionAborted, "Txn.Delete", "transaction is no longer active")
	}
	t.ops = append(t.ops, Op{Key: append([]byte(nil), key...), Deleted: true})
	return nil
}

func (t *Txn) State() State { return t.state }

// journalEntry is one line of the participant's durable journal, written as
// newline-delimited JSON (matching the teacher's replication message shape
// in pkg/replication/protocol.go: a small tagged struct marshaled with
// encoding/json, one per line instead of one per network frame).
type journalEntry struct {
	ID        uuid.UUID `json:"id"`
	State     State     `json:"state"`
	Timestamp int64     `json:"timestamp"`
	Ops       []Op      `json:"ops,omitempty"`
}

// Participant is the local 2PC hook: it stages transactions against Target,
// durably journals PREPARE/COMMIT/ABORT decisions, and can recover in-doubt
// transactions (prepared but not yet resolved) after a crash.
type Participant struct {
	mu      sync.Mutex
	target  Target
	journal *os.File
	path    string
	log     *logging.Logger
	active  map[uuid.UUID]*Txn
}

// Open creates or reopens a participant journal under dir (file
// "txn-journal.log"), replaying any prior entries. The returned inDoubt
// slice lists transactions that reached Prepared but have no later
// Committed/Aborted entry — the caller (an external coordinator, or an
// operator via the CLI) decides their fate and resolves each one by passing
// its *Txn from inDoubt to Commit or Rollback.
func Open(dir string, target Target, log *logging.Logger) (p *Participant, inDoubt []*Txn, err error) {
	path := filepath.Join(dir, "txn-journal.log")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, errs.Wrap(errs.IOError, "txn.Open", "creating journal dir", err)
	}

	byID := make(map[uuid.UUID]*journalEntry)
	if f, openErr := os.Open(path); openErr == nil {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			var e journalEntry
			if jsonErr := json.Unmarshal(sc.Bytes(), &e); jsonErr != nil {
				// A torn final line after a crash mid-write is normal EOF,
				// matching the WAL's own partial-record tolerance (spec §4.3).
				break
			}
			byID[e.ID] = &e
		}
		f.Close()
	} else if !os.IsNotExist(openErr) {
		return nil, nil, errs.Wrap(errs.IOError, "txn.Open", "reading journal", openErr)
	}

	journal, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IOError, "txn.Open", "opening journal for append", err)
	}

	p = &Participant{
		target:  target,
		journal: journal,
		path:    path,
		log:     log,
		active:  make(map[uuid.UUID]*Txn),
	}

	for _, e := range byID {
		if e.State != Prepared {
			continue
		}
		t := &Txn{ID: e.ID, state: Prepared, ops: e.Ops}
		p.active[t.ID] = t
		inDoubt = append(inDoubt, t)
	}
	if log != nil && len(inDoubt) > 0 {
		log.Warn("recovered in-doubt transactions", logging.Int("count", len(inDoubt)))
	}
	return p, inDoubt, nil
}

// Begin starts a new Active transaction.
func (p *Participant) Begin() *Txn {
	return &Txn{ID: uuid.New(), state: Active}
}

func (p *Participant) appendLocked(e journalEntry) error {
	e.Timestamp = time.Now().UnixNano()
	line, err := json.Marshal(e)
	if err != nil {
		return errs.Wrap(errs.IOError, "Participant", "encoding journal entry", err)
	}
	line = append(line, '\n')
	if _, err := p.journal.Write(line); err != nil {
		return errs.Wrap(errs.IOError, "Participant", "writing journal entry", err)
	}
	return p.journal.Sync()
}

// Prepare durably records t's vote to commit, before any mutation reaches
// Target. A crash after Prepare returns leaves t recoverable via Open's
// inDoubt list.
func (p *Participant) Prepare(t *Txn) error {
	if t.state != Active {
		return errs.New(errs.InvalidParam, "Participant.Prepare", "transaction is not active")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.appendLocked(journalEntry{ID: t.ID, State: Prepared, Ops: t.ops}); err != nil {
		return err
	}
	t.state = Prepared
	p.active[t.ID] = t
	return nil
}

// Commit applies every staged op to Target, then journals the decision.
// Ops are applied in staged order; Target.Put/Delete failures abort the
// remaining ops and return the first error (the transaction is left
// Prepared, not rolled back, since partial application against a live
// engine cannot itself be undone — the caller should retry Commit once
// the underlying failure clears, matching spec §7's "busy"/"timeout"
// transient-retry model).
func (p *Participant) Commit(t *Txn) error {
	if t.state != Prepared {
		return errs.New(errs.InvalidParam, "Participant.Commit", "transaction was not prepared")
	}
	for _, op := range t.ops {
		var err error
		if op.Deleted {
			err = p.target.Delete(op.Key)
		} else {
			err = p.target.Put(op.Key, op.Value)
		}
		if err != nil {
			return errs.Wrap(errs.TransactionConflict, "Participant.Commit", "applying staged op", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.appendLocked(journalEntry{ID: t.ID, State: Committed}); err != nil {
		return err
	}
	t.state = Committed
	delete(p.active, t.ID)
	return nil
}

// Rollback discards t's staged ops without touching Target.
func (p *Participant) Rollback(t *Txn) error {
	if t.state == Committed {
		return errs.New(errs.InvalidParam, "Participant.Rollback", "transaction already committed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.appendLocked(journalEntry{ID: t.ID, State: Aborted}); err != nil {
		return err
	}
	t.state = Aborted
	delete(p.active, t.ID)
	return nil
}

// Active reports how many transactions are prepared and not yet committed or
// rolled back, including in-doubt ones recovered by Open. A transaction from
// Begin is not counted until Prepare succeeds.
func (p *Participant) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Participant) Close() error {
	return p.journal.Close()
}
