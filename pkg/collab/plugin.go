package collab

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Origins of the mutating transactions opened by this package.
const (
	// OriginInit tags the transaction in which plugins initialize a document.
	OriginInit = "init"

	// OriginReplay tags the transaction that applies a stored update log.
	OriginReplay = "replay"

	// OriginRemote tags transactions applying updates from other replicas.
	OriginRemote = "remote"
)

// Plugin observes a document's lifecycle.
//
// A plugin instance may be registered with many documents; cid tells them
// apart. Hooks run while the document's mutating transaction is held, so
// they must only use the transaction they are given.
type Plugin interface {
	// DidInit runs once, before the document is used, inside a mutating
	// transaction. Plugins may load state into the document through txn.
	DidInit(cid string, txn *replica.TxnMut) error

	// DidReceiveUpdate runs after every committed transaction with effect.
	// update holds exactly that transaction's changes.
	DidReceiveUpdate(cid string, txn *replica.TxnMut, update []byte) error
}

// Plugins is an append-only plugin registry. It is shared by pointer between
// a Collab and every Context and handle derived from it.
type Plugins struct {
	mu      sync.RWMutex
	plugins []Plugin
}

// NewPlugins returns a registry holding ps in order.
func NewPlugins(ps ...Plugin) *Plugins {
	p := &Plugins{}
	p.AddAll(ps...)
	return p
}

// Add registers plugin after all previously registered ones.
func (p *Plugins) Add(plugin Plugin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plugins = append(p.plugins, plugin)
}

// AddAll registers ps in order.
func (p *Plugins) AddAll(ps ...Plugin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plugins = append(p.plugins, ps...)
}

// Len returns the number of registered plugins.
func (p *Plugins) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.plugins)
}

// ForEach calls f for every plugin in registration order. The registry is not
// locked while f runs, so f may register more plugins; those are not visited.
func (p *Plugins) ForEach(f func(Plugin)) {
	for _, plugin := range p.snapshot() {
		f(plugin)
	}
}

func (p *Plugins) snapshot() []Plugin {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ps := make([]Plugin, len(p.plugins))
	copy(ps, p.plugins)
	return ps
}

// initializeAll runs DidInit on every plugin. All plugins are visited and
// their failures returned together.
func (p *Plugins) initializeAll(cid string, txn *replica.TxnMut) error {
	var result *multierror.Error
	p.ForEach(func(plugin Plugin) {
		if err := plugin.DidInit(cid, txn); err != nil {
			result = multierror.Append(result, err)
		}
	})
	if result == nil {
		return nil
	}
	return &PluginError{CID: cid, Hook: "DidInit", Errs: result}
}

// notifyUpdate runs DidReceiveUpdate on every plugin.
func (p *Plugins) notifyUpdate(cid string, txn *replica.TxnMut, update []byte) error {
	var result *multierror.Error
	p.ForEach(func(plugin Plugin) {
		if err := plugin.DidReceiveUpdate(cid, txn, update); err != nil {
			result = multierror.Append(result, err)
		}
	})
	if result == nil {
		return nil
	}
	return &PluginError{CID: cid, Hook: "DidReceiveUpdate", Errs: result}
}
