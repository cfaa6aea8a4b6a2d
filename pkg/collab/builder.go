package collab

import (
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Builder assembles a Collab.
type Builder struct {
	clientID uint64
	cid      string
	plugins  []Plugin
	logger   hclog.Logger
}

// NewBuilder starts a document with the given client id and document id.
func NewBuilder(clientID uint64, cid string) *Builder {
	return &Builder{
		clientID: clientID,
		cid:      cid,
	}
}

// WithPlugin registers p. Plugins are notified in the order they are added.
func (b *Builder) WithPlugin(p Plugin) *Builder {
	b.plugins = append(b.plugins, p)
	return b
}

// WithPlugins registers ps in order.
func (b *Builder) WithPlugins(ps ...Plugin) *Builder {
	b.plugins = append(b.plugins, ps...)
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger hclog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build creates the document. Call Initialize on it before first use.
func (b *Builder) Build() *Collab {
	return New(b.clientID, b.cid, b.logger, b.plugins...)
}

// BuildWithUpdates creates the document and applies updates to it in one
// transaction. Plugins are attached but not notified of the replayed
// updates.
//
// Updates may arrive out of order: a change whose dependencies are missing
// is held back until a later update provides them. If one cannot be
// integrated, nothing is applied and a *ReplayError names it.
func (b *Builder) BuildWithUpdates(updates [][]byte) (*Collab, error) {
	c := b.Build()

	_, err := mutate(c.ctx, OriginReplay, func(txn *replica.TxnMut) (struct{}, error) {
		for i, update := range updates {
			if err := txn.ApplyUpdate(update); err != nil {
				return struct{}{}, &ReplayError{Index: i, Err: err}
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("replayed document", "updates", len(updates))
	return c, nil
}
