// Package replica adapts an automerge document to the transactional
// interface consumed by the collab package.
//
// A Doc wraps one automerge document. Every change happens inside a
// mutating transaction (TxnMut). Committing a transaction turns its
// operations into automerge changes and hands their encoded form, one
// opaque binary update, to the update observers. Other replicas integrate
// the update with TxnMut.ApplyUpdate. Merging, causal ordering and the wire
// format are automerge's; this package only scopes them into transactions.
//
// # Handles
//
// Map and Array handles address a container by its path from the root map.
// A handle keeps following its path, so after a key is overwritten with a
// new map the handle reads the new one, and a handle to an array element
// follows the index rather than the element. Handles are cached per path:
// looking up the same path twice returns the same handle.
//
// # Identity
//
// Local changes are attributed to an automerge actor derived from the
// client id. Two replicas must never edit a document under the same client
// id: automerge rejects the second replica's changes as duplicates.
//
// # Concurrency
//
// A Doc allows many concurrent read transactions or exactly one mutating
// transaction. Transactions are not reentrant: opening a second transaction on
// the same Doc from the goroutine that holds a mutating one deadlocks. Update
// and container observers run while the mutating transaction is still held
// and must only use the transaction they are given.
package replica

import (
	"fmt"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
)

// genesisActor writes the empty change every document starts from. It is
// shorter than any client actor so the two never collide.
const genesisActor = "00"

// genesis is an empty change committed by genesisActor at a fixed time, so
// it encodes to the same bytes, and hash, on every replica. Starting from it
// keeps automerge on its incremental load path, which holds back changes
// with missing dependencies instead of rejecting them.
var genesis struct {
	once sync.Once
	save []byte
	hash automerge.ChangeHash
}

func loadGenesis() *automerge.Doc {
	genesis.once.Do(func() {
		g := automerge.New()
		if err := g.SetActorID(genesisActor); err != nil {
			panic(fmt.Sprintf("replica: genesis actor: %v", err))
		}
		at := time.UnixMilli(1)
		hash, err := g.Commit("", automerge.CommitOptions{AllowEmpty: true, Time: &at})
		if err != nil {
			panic(fmt.Sprintf("replica: genesis change: %v", err))
		}
		genesis.save = g.Save()
		genesis.hash = hash
	})

	am, err := automerge.Load(genesis.save)
	if err != nil {
		panic(fmt.Sprintf("replica: load genesis: %v", err))
	}
	return am
}

// versionOf returns the heads of am without the genesis change.
func versionOf(am *automerge.Doc) Heads {
	heads := am.Heads()
	if len(heads) == 1 && heads[0] == genesis.hash {
		return nil
	}
	return Heads(heads)
}

// Heads identifies a document version by the hashes of its latest changes.
type Heads []automerge.ChangeHash

// Strings returns the hex encoded hashes.
func (h Heads) Strings() []string {
	out := make([]string, len(h))
	for i, hash := range h {
		out[i] = hash.String()
	}
	return out
}

// UpdateObserver is called once per committed transaction that changed the
// document. The update holds exactly that transaction's changes.
type UpdateObserver func(txn *TxnMut, update []byte) error

// Doc is a replicated document.
type Doc struct {
	mu       sync.RWMutex
	clientID uint64
	actor    string
	am       *automerge.Doc

	// handlesMu guards the handle caches so handles can be looked up inside
	// read transactions.
	handlesMu sync.Mutex
	maps      map[string]*Map
	arrays    map[string]*Array

	updateObservers *observers[UpdateObserver]
}

// ActorID returns the automerge actor id local changes of clientID are
// attributed to.
func ActorID(clientID uint64) string {
	return fmt.Sprintf("%016x", clientID)
}

// NewDoc creates an empty document whose local changes are attributed to
// clientID.
func NewDoc(clientID uint64) *Doc {
	d := &Doc{
		clientID:        clientID,
		actor:           ActorID(clientID),
		maps:            make(map[string]*Map),
		arrays:          make(map[string]*Array),
		updateObservers: newObservers[UpdateObserver](),
	}
	d.am = d.adopt(loadGenesis())
	return d
}

// adopt makes am write as this document's actor.
func (d *Doc) adopt(am *automerge.Doc) *automerge.Doc {
	// The actor is always an even number of hex digits.
	if err := am.SetActorID(d.actor); err != nil {
		panic(fmt.Sprintf("replica: set actor %s: %v", d.actor, err))
	}
	return am
}

// ClientID returns the client id local changes are attributed to.
func (d *Doc) ClientID() uint64 {
	return d.clientID
}

// Root returns the root map. It may be called with or without an open
// transaction.
func (d *Doc) Root() *Map {
	return d.mapHandle(nil)
}

// ObserveUpdates registers f to receive the encoded update of every commit.
// Observers run in registration order.
func (d *Doc) ObserveUpdates(f UpdateObserver) *Subscription {
	return d.updateObservers.add(f)
}

// Transact opens a read-only transaction. Call Release when done.
func (d *Doc) Transact() *Txn {
	d.mu.RLock()
	return &Txn{doc: d}
}

// TransactMut opens a mutating transaction. Call Commit or Rollback when done.
func (d *Doc) TransactMut() *TxnMut {
	return d.TransactMutWithOrigin("")
}

// TransactMutWithOrigin opens a mutating transaction tagged with origin. The
// origin is recorded as the message of the changes the transaction commits,
// and observers can inspect it to tell local edits from replayed or remote
// ones.
func (d *Doc) TransactMutWithOrigin(origin string) *TxnMut {
	d.mu.Lock()
	return newTxnMut(d, origin)
}

// HeadsOf returns the current version of txn's document, which is empty for
// a document without changes. Changes held back for a missing dependency are
// not part of the version, so a diff against it still carries everything
// from the first gap on.
func HeadsOf(txn ReadTxn) (Heads, error) {
	if t, ok := txn.(*TxnMut); ok {
		if err := t.seal(); err != nil {
			return nil, err
		}
	}
	return versionOf(txn.Doc().am), nil
}

// EncodeStateAsUpdate encodes every change not covered by since as a single
// update. An empty since encodes the whole document as a compacted snapshot,
// which is nil for a document without changes. Changes still waiting for a
// missing dependency are never included.
func EncodeStateAsUpdate(txn ReadTxn, since Heads) ([]byte, error) {
	if t, ok := txn.(*TxnMut); ok {
		if err := t.seal(); err != nil {
			return nil, err
		}
	}

	am := txn.Doc().am
	if len(since) == 0 {
		if len(versionOf(am)) == 0 {
			return nil, nil
		}
		return am.Save(), nil
	}

	changes, err := am.Changes(since...)
	if err != nil {
		return nil, fmt.Errorf("changes since %v: %w", since.Strings(), err)
	}
	return automerge.SaveChanges(changes), nil
}

func (d *Doc) mapHandle(path []any) *Map {
	key := pathKey(path)

	d.handlesMu.Lock()
	defer d.handlesMu.Unlock()

	if m, ok := d.maps[key]; ok {
		return m
	}
	m := &Map{doc: d, path: path, observers: newObservers[MapObserver]()}
	d.maps[key] = m
	return m
}

func (d *Doc) arrayHandle(path []any) *Array {
	key := pathKey(path)

	d.handlesMu.Lock()
	defer d.handlesMu.Unlock()

	if a, ok := d.arrays[key]; ok {
		return a
	}
	a := &Array{doc: d, path: path, observers: newObservers[ArrayObserver]()}
	d.arrays[key] = a
	return a
}

// observed returns the cached handles that have observers.
func (d *Doc) observed() ([]*Map, []*Array) {
	d.handlesMu.Lock()
	defer d.handlesMu.Unlock()

	var maps []*Map
	for _, m := range d.maps {
		if m.observers.len() > 0 {
			maps = append(maps, m)
		}
	}
	var arrays []*Array
	for _, a := range d.arrays {
		if a.observers.len() > 0 {
			arrays = append(arrays, a)
		}
	}
	return maps, arrays
}

// lookup walks path from the root map. It returns nil when the path does not
// lead to a value.
func (d *Doc) lookup(path []any) *automerge.Value {
	v := d.am.Root()
	for _, seg := range path {
		var err error
		switch s := seg.(type) {
		case string:
			if v.Kind() != automerge.KindMap {
				return nil
			}
			v, err = v.Map().Get(s)
		case int:
			if v.Kind() != automerge.KindList {
				return nil
			}
			v, err = v.List().Get(s)
		default:
			return nil
		}
		if err != nil || v.IsVoid() {
			return nil
		}
	}
	return v
}

func (d *Doc) amMap(path []any) *automerge.Map {
	v := d.lookup(path)
	if v == nil || v.Kind() != automerge.KindMap {
		return nil
	}
	return v.Map()
}

func (d *Doc) amList(path []any) *automerge.List {
	v := d.lookup(path)
	if v == nil || v.Kind() != automerge.KindList {
		return nil
	}
	return v.List()
}

// wrap converts a value read at path into what containers return: handles
// for nested maps and arrays, Go values for everything else.
func (d *Doc) wrap(path []any, v *automerge.Value) any {
	switch v.Kind() {
	case automerge.KindMap:
		return d.mapHandle(path)
	case automerge.KindList:
		return d.arrayHandle(path)
	default:
		return plain(v)
	}
}
