// Package disk provides a collab.Plugin that keeps every document's update
// log in a persistence.DocStore.
package disk

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/persistence"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Plugin loads a document's stored log when it is initialized and appends
// every later update to it.
type Plugin struct {
	store  persistence.DocStore
	logger hclog.Logger

	// flushEvery compacts a document's log after that many appended updates.
	// Zero disables compaction.
	flushEvery int

	mu      sync.Mutex
	pending map[string]int
}

var _ collab.Plugin = (*Plugin)(nil)

// Option configures a Plugin.
type Option func(*Plugin)

// WithFlushEvery compacts a document's log into a single snapshot once n
// updates have been appended since the last compaction.
func WithFlushEvery(n int) Option {
	return func(p *Plugin) {
		p.flushEvery = n
	}
}

// NewPlugin returns a plugin storing logs in store.
func NewPlugin(store persistence.DocStore, logger hclog.Logger, opts ...Option) *Plugin {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	p := &Plugin{
		store:   store,
		logger:  logger.Named("disk"),
		pending: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the store the plugin writes to.
func (p *Plugin) Store() persistence.DocStore {
	return p.store
}

// DidInit loads the stored log of cid into txn, or creates the log seeded
// with whatever txn's document already holds.
func (p *Plugin) DidInit(cid string, txn *replica.TxnMut) error {
	if p.store.IsExist(cid) {
		return p.store.LoadDoc(cid, txn)
	}
	p.logger.Debug("creating document log", "cid", cid)
	return p.store.InsertOrCreateNewDoc(cid, txn)
}

// DidReceiveUpdate appends update to the log of cid.
func (p *Plugin) DidReceiveUpdate(cid string, txn *replica.TxnMut, update []byte) error {
	if err := p.store.PushUpdate(cid, update); err != nil {
		return err
	}
	if p.flushEvery <= 0 || !p.due(cid) {
		return nil
	}

	// txn already holds the committed state, so the snapshot includes update.
	if err := p.store.Flush(cid, txn); err != nil {
		p.logger.Warn("failed to compact document log", "cid", cid, "error", err)
	}
	return nil
}

// due counts an appended update and reports whether the log should be
// compacted now.
func (p *Plugin) due(cid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending[cid]++
	if p.pending[cid] < p.flushEvery {
		return false
	}
	delete(p.pending, cid)
	return true
}
