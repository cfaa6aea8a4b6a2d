package collab

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// NewDocumentID returns a random document id.
func NewDocumentID() string {
	return uuid.NewString()
}

// NewClientID returns a random client id. Every replica editing a document
// needs its own client id; updates written under a client id another
// replica already used are rejected.
func NewClientID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

// Collab is a replicated document with plugin notification.
type Collab struct {
	cid     string
	doc     *replica.Doc
	attrs   *replica.Map
	plugins *Plugins
	ctx     *Context
	logger  hclog.Logger
	sub     *replica.Subscription

	initOnce sync.Once
	initErr  error
}

// New creates a document. Prefer NewBuilder.
func New(clientID uint64, cid string, logger hclog.Logger, plugins ...Plugin) *Collab {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("collab").With("cid", cid)

	doc := replica.NewDoc(clientID)
	c := &Collab{
		cid:     cid,
		doc:     doc,
		attrs:   doc.Root(),
		plugins: NewPlugins(plugins...),
		logger:  logger,
	}
	c.ctx = newContext(cid, doc, c.plugins, logger)
	c.sub = doc.ObserveUpdates(c.didCommit)
	return c
}

// didCommit hands the update of a committed transaction to the plugins.
// Updates from initialization and replay describe state that is already
// durable and are not handed out again.
func (c *Collab) didCommit(txn *replica.TxnMut, update []byte) error {
	switch txn.Origin() {
	case OriginInit, OriginReplay:
		return nil
	}
	return c.plugins.notifyUpdate(c.cid, txn, update)
}

// CID returns the document id.
func (c *Collab) CID() string {
	return c.cid
}

// ClientID returns the client id local changes are attributed to.
func (c *Collab) ClientID() uint64 {
	return c.doc.ClientID()
}

// Doc returns the underlying replicated document.
func (c *Collab) Doc() *replica.Doc {
	return c.doc
}

// Context returns the transaction context of the document.
func (c *Collab) Context() *Context {
	return c.ctx
}

// Plugins returns the plugin registry.
func (c *Collab) Plugins() *Plugins {
	return c.plugins
}

// AddPlugin registers p after the existing plugins. Plugins added after
// Initialize are not initialized.
func (c *Collab) AddPlugin(p Plugin) {
	c.plugins.Add(p)
}

// AddPlugins registers ps in order.
func (c *Collab) AddPlugins(ps ...Plugin) {
	c.plugins.AddAll(ps...)
}

// Initialize runs DidInit on every plugin in one mutating transaction. Only
// the first call does any work; later calls return the first result. When a
// plugin fails, the transaction is rolled back and a *PluginError returned.
func (c *Collab) Initialize() error {
	c.initOnce.Do(func() {
		_, c.initErr = mutate(c.ctx, OriginInit, func(txn *replica.TxnMut) (struct{}, error) {
			return struct{}{}, c.plugins.initializeAll(c.cid, txn)
		})
		if c.initErr != nil {
			c.logger.Error("error initializing document", "error", c.initErr)
			return
		}
		c.logger.Debug("initialized document", "plugins", c.plugins.Len())
	})
	return c.initErr
}

// Close stops plugin notification for the document.
func (c *Collab) Close() {
	c.sub.Unsubscribe()
}

// WithTransact runs f in a read transaction.
func (c *Collab) WithTransact(f func(txn *replica.Txn) error) error {
	return c.ctx.WithTransact(f)
}

// WithTransactMut runs f in a mutating transaction. See
// Context.WithTransactMut.
func (c *Collab) WithTransactMut(f func(txn *replica.TxnMut) error) error {
	return c.ctx.WithTransactMut(f)
}

// ApplyUpdate integrates an update produced by another replica. Plugins are
// notified of the part of it that was new to this replica.
func (c *Collab) ApplyUpdate(update []byte) error {
	_, err := mutate(c.ctx, OriginRemote, func(txn *replica.TxnMut) (struct{}, error) {
		return struct{}{}, txn.ApplyUpdate(update)
	})
	return err
}

// EncodeState returns the whole document as a single update, or nil for a
// document without changes.
func (c *Collab) EncodeState() ([]byte, error) {
	txn := c.doc.Transact()
	defer txn.Release()
	return replica.EncodeStateAsUpdate(txn, nil)
}

// EncodeStateSince returns the changes a replica at version since is
// missing as a single update.
func (c *Collab) EncodeStateSince(since replica.Heads) ([]byte, error) {
	txn := c.doc.Transact()
	defer txn.Release()
	return replica.EncodeStateAsUpdate(txn, since)
}

// Heads returns the current version of the document. Changes held back for
// a missing dependency are not part of it.
func (c *Collab) Heads() replica.Heads {
	txn := c.doc.Transact()
	defer txn.Release()
	heads, _ := replica.HeadsOf(txn)
	return heads
}

// Get returns the JSON projection of the attribute under key.
func (c *Collab) Get(key string) (any, bool) {
	return c.attrsWrapper().Get(key)
}

// Insert stores value under key in the attribute map.
func (c *Collab) Insert(key string, value any) error {
	return c.attrsWrapper().Insert(key, value)
}

// InsertWithTxn stores value under key in the attribute map.
func (c *Collab) InsertWithTxn(txn *replica.TxnMut, key string, value any) error {
	return c.attrsWrapper().InsertWithTxn(txn, key, value)
}

// Remove deletes key from the attribute map.
func (c *Collab) Remove(key string) (any, bool, error) {
	return c.attrsWrapper().Remove(key)
}

// CreateMapWithTxn creates an empty map under key in the attribute map,
// replacing any value stored there.
func (c *Collab) CreateMapWithTxn(txn *replica.TxnMut, key string) (*MapRefWrapper, error) {
	return c.attrsWrapper().InsertMapWithTxn(txn, key)
}

// InsertJSONWithPath serializes value to JSON and stores it under key in the
// map at path, or in the attribute map when path is empty. It reports false
// when path does not lead to a map.
func (c *Collab) InsertJSONWithPath(path Path, key string, value any) (bool, error) {
	content, err := jsonPrelim(value)
	if err != nil {
		return false, &SerializationError{Path: append(path[:len(path):len(path)], key), Err: err}
	}

	return Mutate(c.ctx, func(txn *replica.TxnMut) (bool, error) {
		m := c.attrs
		if len(path) > 0 {
			var ok bool
			if m, ok = resolveMap(txn, c.attrs, path); !ok {
				return false, nil
			}
		}
		if _, err := m.Insert(txn, key, content); err != nil {
			return false, err
		}
		return true, nil
	})
}

// ToJSON returns a snapshot of the attribute map as plain Go data.
func (c *Collab) ToJSON() map[string]any {
	return c.attrsWrapper().ToJSONValue()
}

// ToJSONWithPath returns the value at path encoded as JSON.
func (c *Collab) ToJSONWithPath(path Path) (string, bool) {
	txn := c.doc.Transact()
	defer txn.Release()

	v, ok := resolveValue(txn, c.attrs, path)
	if !ok {
		return "", false
	}
	return marshalString(plainValue(txn, v)), true
}

// GetJSONWithPath decodes the value at path into a T. A value that does not
// fit T is reported as a *SerializationError; a missing path is not an
// error.
func GetJSONWithPath[T any](c *Collab, path Path) (T, bool, error) {
	txn := c.doc.Transact()
	v, ok := resolveValue(txn, c.attrs, path)
	var projected any
	if ok {
		projected = plainValue(txn, v)
	}
	txn.Release()

	if !ok {
		var zero T
		return zero, false, nil
	}
	out, err := decodeJSONValue[T](path, projected)
	return out, true, err
}

// Observe registers f for changes to the keys of the map at path.
func (c *Collab) Observe(path Path, f replica.MapObserver) (*replica.Subscription, bool) {
	m, ok := c.GetMapWithPath(path)
	if !ok {
		return nil, false
	}
	return m.Observe(f), true
}

// ObserveAttrs registers f for changes to the keys of the attribute map.
func (c *Collab) ObserveAttrs(f replica.MapObserver) *replica.Subscription {
	return c.attrs.Observe(f)
}

// ApplyJSONPatch applies an RFC 6902 patch to the map at path, or to the
// attribute map when path is empty, in one transaction. Only keys whose
// value changed are written. It reports false when path does not lead to a
// map.
func (c *Collab) ApplyJSONPatch(path Path, patch []byte) (bool, error) {
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return false, &SerializationError{Path: path, Err: err}
	}

	return Mutate(c.ctx, func(txn *replica.TxnMut) (bool, error) {
		m := c.attrs
		if len(path) > 0 {
			var ok bool
			if m, ok = resolveMap(txn, c.attrs, path); !ok {
				return false, nil
			}
		}

		current, err := json.Marshal(m.ToJSON(txn))
		if err != nil {
			return false, &SerializationError{Path: path, Err: err}
		}
		patched, err := p.Apply(current)
		if err != nil {
			return false, &SerializationError{Path: path, Err: err}
		}
		next, err := decodeJSONPrelim(patched)
		if err != nil {
			return false, &SerializationError{Path: path, Err: err}
		}
		obj, ok := next.(replica.MapPrelim)
		if !ok {
			return false, &SerializationError{Path: path, Err: ErrNotAMap}
		}
		if err := syncMap(txn, m, obj); err != nil {
			return false, err
		}
		return true, nil
	})
}

// syncMap makes m hold exactly want, writing only what differs. Nested maps
// present on both sides are synced in place.
func syncMap(txn *replica.TxnMut, m *replica.Map, want replica.MapPrelim) error {
	for _, key := range m.Keys(txn) {
		if _, ok := want[key]; ok {
			continue
		}
		if _, _, err := m.Remove(txn, key); err != nil {
			return err
		}
	}

	for key, v := range want {
		cur, ok := m.Get(txn, key)
		if ok {
			curMap, curIsMap := cur.(*replica.Map)
			wantMap, wantIsMap := v.(replica.MapPrelim)
			if curIsMap && wantIsMap {
				if err := syncMap(txn, curMap, wantMap); err != nil {
					return err
				}
				continue
			}
			if marshalString(plainValue(txn, cur)) == marshalString(v) {
				continue
			}
		}
		if _, err := m.Insert(txn, key, v); err != nil {
			return err
		}
	}
	return nil
}

// String returns the document as {"attributes": ...}.
func (c *Collab) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// MarshalJSON encodes the document as {"attributes": ...}.
func (c *Collab) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Attributes map[string]any `json:"attributes"`
	}{
		Attributes: c.ToJSON(),
	})
}

func (c *Collab) attrsWrapper() *MapRefWrapper {
	return c.mapWrapper(c.attrs)
}

func (c *Collab) mapWrapper(m *replica.Map) *MapRefWrapper {
	return NewMapRefWrapper(m, c.ctx)
}

func (c *Collab) arrayWrapper(a *replica.Array) *ArrayRefWrapper {
	return NewArrayRefWrapper(a, c.ctx)
}
