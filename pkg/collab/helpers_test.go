package collab

import (
	"sync"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// recordingPlugin keeps every update it receives.
type recordingPlugin struct {
	mu      sync.Mutex
	name    string
	inits   []string
	updates [][]byte
	origins []string

	// trace is shared between plugins to check notification order.
	trace *[]string

	initErr   error
	updateErr error

	// onUpdate, when set, runs inside DidReceiveUpdate.
	onUpdate func(txn *replica.TxnMut)
}

func (p *recordingPlugin) DidInit(cid string, txn *replica.TxnMut) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits = append(p.inits, cid)
	return p.initErr
}

func (p *recordingPlugin) DidReceiveUpdate(cid string, txn *replica.TxnMut, update []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	p.origins = append(p.origins, txn.Origin())
	if p.trace != nil {
		*p.trace = append(*p.trace, p.name)
	}
	if p.onUpdate != nil {
		p.onUpdate(txn)
	}
	return p.updateErr
}

func (p *recordingPlugin) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

func (p *recordingPlugin) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return nil
	}
	return p.updates[len(p.updates)-1]
}

// seedPlugin writes a key during initialization.
type seedPlugin struct {
	key   string
	value any
}

func (p *seedPlugin) DidInit(cid string, txn *replica.TxnMut) error {
	_, err := txn.Doc().Root().Insert(txn, p.key, p.value)
	return err
}

func (p *seedPlugin) DidReceiveUpdate(string, *replica.TxnMut, []byte) error {
	return nil
}
