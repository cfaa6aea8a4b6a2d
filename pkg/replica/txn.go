package replica

import (
	"errors"
	"fmt"

	"github.com/automerge/automerge-go"
	"github.com/hashicorp/go-multierror"
)

// ErrTxnDone is returned when a transaction is used after Commit or Rollback.
var ErrTxnDone = errors.New("transaction already finished")

// ErrForeignTxn is returned when a container is mutated through a
// transaction of another document.
var ErrForeignTxn = errors.New("transaction belongs to another document")

// ErrMalformedUpdate is returned when an update cannot be integrated: it does
// not decode, or it carries changes that conflict with ones already known,
// such as a second replica writing under the same client id.
var ErrMalformedUpdate = errors.New("malformed update")

// ErrDetached is returned when a handle is written through while its path
// no longer leads to a container of its kind.
var ErrDetached = errors.New("container no longer exists")

// ReadTxn is implemented by both read-only and mutating transactions.
type ReadTxn interface {
	// Doc returns the document the transaction was opened on.
	Doc() *Doc

	readTxn()
}

// Txn is a read-only transaction.
type Txn struct {
	doc      *Doc
	released bool
}

// Doc implements ReadTxn.
func (t *Txn) Doc() *Doc { return t.doc }

func (t *Txn) readTxn() {}

// Release ends the transaction. It is safe to call more than once.
func (t *Txn) Release() {
	if t.released {
		return
	}
	t.released = true
	t.doc.mu.RUnlock()
}

// TxnMut is a mutating transaction. At most one is open per Doc.
type TxnMut struct {
	doc    *Doc
	origin string
	done   bool

	// heads is the version the transaction started from.
	heads []automerge.ChangeHash

	// staged is set while local operations wait for an automerge commit;
	// touched once the document may differ from heads.
	staged  bool
	touched bool
	edits   int

	changedMaps   []*MapEvent
	mapIndex      map[*Map]int
	mapKeys       map[*Map]map[string]struct{}
	changedArrays []*ArrayEvent
	arrayIndex    map[*Array]int
}

func newTxnMut(d *Doc, origin string) *TxnMut {
	return &TxnMut{
		doc:        d,
		origin:     origin,
		heads:      d.am.Heads(),
		mapIndex:   make(map[*Map]int),
		mapKeys:    make(map[*Map]map[string]struct{}),
		arrayIndex: make(map[*Array]int),
	}
}

// Doc implements ReadTxn.
func (t *TxnMut) Doc() *Doc { return t.doc }

func (t *TxnMut) readTxn() {}

// Origin returns the origin tag the transaction was opened with.
func (t *TxnMut) Origin() string { return t.origin }

// Len returns the number of local edits made so far.
func (t *TxnMut) Len() int { return t.edits }

// ApplyUpdate integrates a remote or replayed update. Changes already known
// are skipped; changes whose dependencies are missing are held back until a
// later update provides them.
func (t *TxnMut) ApplyUpdate(update []byte) error {
	if err := t.checkOpen(t.doc); err != nil {
		return err
	}
	if len(update) == 0 {
		return nil
	}
	if err := t.seal(); err != nil {
		return err
	}

	if err := checkChunks(update); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}

	before := t.doc.snapshotObserved()
	t.touched = true
	if err := t.doc.am.LoadIncremental(update); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	t.diffObserved(before)
	return nil
}

// Commit finishes the transaction. Container observers run first, then the
// transaction's update is passed to every update observer. A transaction that
// changed nothing produces no update and notifies nobody.
//
// Observer failures do not undo the commit; they are returned together.
func (t *TxnMut) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	defer t.doc.mu.Unlock()

	if !t.touched {
		return nil
	}
	if err := t.seal(); err != nil {
		return multierror.Append(err, t.restore())
	}
	changes, err := t.doc.am.Changes(t.heads...)
	if err != nil {
		return multierror.Append(fmt.Errorf("collect changes: %w", err), t.restore())
	}
	if len(changes) == 0 {
		return nil
	}

	for _, ev := range t.changedMaps {
		for _, f := range ev.Target.observers.snapshot() {
			f(t, ev)
		}
	}
	for _, ev := range t.changedArrays {
		for _, f := range ev.Target.observers.snapshot() {
			f(t, ev)
		}
	}

	update := automerge.SaveChanges(changes)

	var result *multierror.Error
	for _, f := range t.doc.updateObservers.snapshot() {
		if err := f(t, update); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Rollback discards every change made by the transaction. No update is
// produced and no observer runs. It is a no-op after Commit.
//
// The document is restored by forking it at the version the transaction
// started from, which also drops received changes still waiting for a
// missing dependency.
func (t *TxnMut) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.doc.mu.Unlock()

	if !t.touched {
		return nil
	}
	return t.restore()
}

func (t *TxnMut) restore() error {
	d := t.doc
	forked, err := d.am.Fork(t.heads...)
	if err != nil {
		return fmt.Errorf("restore version %v: %w", Heads(t.heads).Strings(), err)
	}
	d.am = d.adopt(forked)
	return nil
}

// seal commits staged local operations as one automerge change tagged with
// the origin. Automerge commits pending operations implicitly before most
// history operations; sealing first keeps the origin on them.
func (t *TxnMut) seal() error {
	if !t.staged {
		return nil
	}
	if _, err := t.doc.am.Commit(t.origin); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.staged = false
	return nil
}

func (t *TxnMut) checkOpen(d *Doc) error {
	if t.done {
		return ErrTxnDone
	}
	if t.doc != d {
		return ErrForeignTxn
	}
	return nil
}

// edited records a local operation.
func (t *TxnMut) edited() {
	t.staged = true
	t.touched = true
	t.edits++
}

func (t *TxnMut) mapChanged(m *Map, key string) {
	i, ok := t.mapIndex[m]
	if !ok {
		i = len(t.changedMaps)
		t.mapIndex[m] = i
		t.mapKeys[m] = make(map[string]struct{})
		t.changedMaps = append(t.changedMaps, &MapEvent{Target: m})
	}
	if _, seen := t.mapKeys[m][key]; seen {
		return
	}
	t.mapKeys[m][key] = struct{}{}
	t.changedMaps[i].Keys = append(t.changedMaps[i].Keys, key)
}

func (t *TxnMut) arrayChanged(a *Array, inserted, deleted int) {
	i, ok := t.arrayIndex[a]
	if !ok {
		i = len(t.changedArrays)
		t.arrayIndex[a] = i
		t.changedArrays = append(t.changedArrays, &ArrayEvent{Target: a})
	}
	t.changedArrays[i].Inserted += inserted
	t.changedArrays[i].Deleted += deleted
}
