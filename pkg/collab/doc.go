// Package collab is a transactional access layer over a replicated document.
//
// A Collab owns one replica.Doc and exposes its "attrs" root map as a
// hierarchical attribute store addressed by paths. Every mutation runs inside
// exactly one mutating transaction. When a transaction with effect commits,
// the engine encodes it as a binary update and every registered Plugin sees
// that update, in registration order, before the mutating call returns.
//
// Plugins are also given the chance to seed the document once through
// Collab.Initialize, which is how persisted state is loaded:
//
//	c := collab.NewBuilder(1, "doc-1").
//		WithPlugin(disk.NewPlugin(store, logger)).
//		WithLogger(logger).
//		Build()
//	if err := c.Initialize(); err != nil {
//		return err
//	}
//
// Updates produced while initializing or while replaying a stored log are
// not handed to plugins again, since they describe state that is already
// durable. Updates received from other replicas through ApplyUpdate are.
package collab
