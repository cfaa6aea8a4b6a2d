package collab

import (
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Context scopes transactions on one document. Contexts are cheap values
// shared by a Collab and the handles it returns.
type Context struct {
	cid     string
	doc     *replica.Doc
	plugins *Plugins
	logger  hclog.Logger
}

func newContext(cid string, doc *replica.Doc, plugins *Plugins, logger hclog.Logger) *Context {
	return &Context{
		cid:     cid,
		doc:     doc,
		plugins: plugins,
		logger:  logger,
	}
}

// CID returns the document id.
func (c *Context) CID() string {
	return c.cid
}

// WithTransact runs f in a read transaction.
func (c *Context) WithTransact(f func(txn *replica.Txn) error) error {
	txn := c.doc.Transact()
	defer txn.Release()
	return f(txn)
}

// WithTransactMut runs f in a new mutating transaction and commits it. By the
// time WithTransactMut returns every plugin has seen the transaction's update.
//
// If f returns an error or panics, the transaction is rolled back: the
// document is unchanged and no plugin runs. Plugin failures do not undo the
// commit and are returned as a *PluginError.
func (c *Context) WithTransactMut(f func(txn *replica.TxnMut) error) error {
	_, err := Mutate(c, func(txn *replica.TxnMut) (struct{}, error) {
		return struct{}{}, f(txn)
	})
	return err
}

// Mutate is WithTransactMut for functions that produce a value. The zero
// value of T is returned when f fails.
func Mutate[T any](c *Context, f func(txn *replica.TxnMut) (T, error)) (T, error) {
	return mutate(c, "", f)
}

func mutate[T any](c *Context, origin string, f func(txn *replica.TxnMut) (T, error)) (T, error) {
	txn := c.doc.TransactMutWithOrigin(origin)
	finished := false
	defer func() {
		if !finished {
			c.rollback(txn)
		}
	}()

	v, err := f(txn)
	finished = true
	if err != nil {
		c.rollback(txn)
		var zero T
		return zero, err
	}
	return v, c.commit(txn)
}

func (c *Context) rollback(txn *replica.TxnMut) {
	if err := txn.Rollback(); err != nil {
		c.logger.Error("error rolling back transaction", "origin", txn.Origin(), "error", err)
	}
}

func (c *Context) commit(txn *replica.TxnMut) error {
	err := txn.Commit()
	if err == nil {
		return nil
	}

	var pluginErr *PluginError
	if errors.As(err, &pluginErr) {
		c.logger.Error("plugins failed to handle update",
			"origin", txn.Origin(),
			"error", pluginErr.Errs,
		)
		return pluginErr
	}
	return err
}
