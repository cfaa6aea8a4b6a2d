package collab

import (
	"fmt"
	"strings"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Path addresses a value in the attribute map. The first segment is a key of
// the attribute map and every following segment a key of the map reached so
// far. An empty path never resolves.
type Path []string

// NewPath returns a path made of segments.
func NewPath(segments ...string) Path {
	return Path(segments)
}

// ParsePath splits a slash separated path. Empty segments are dropped, so ""
// and "/" both parse to the empty path.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

// String joins the segments with slashes.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// parent splits p into the path of its parent container and the last
// segment. p must not be empty.
func (p Path) parent() (Path, string) {
	return p[:len(p)-1], p[len(p)-1]
}

// resolveMap walks path from attrs, expecting a map at every segment.
func resolveMap(txn replica.ReadTxn, attrs *replica.Map, path Path) (*replica.Map, bool) {
	if len(path) == 0 {
		return nil, false
	}
	m := attrs
	for _, seg := range path {
		v, ok := m.Get(txn, seg)
		if !ok {
			return nil, false
		}
		next, ok := v.(*replica.Map)
		if !ok {
			return nil, false
		}
		m = next
	}
	return m, true
}

// resolveParent returns the map holding the last segment of path. For a
// single segment path that is attrs itself.
func resolveParent(txn replica.ReadTxn, attrs *replica.Map, path Path) (*replica.Map, string, bool) {
	if len(path) == 0 {
		return nil, "", false
	}
	parentPath, key := path.parent()
	if len(parentPath) == 0 {
		return attrs, key, true
	}
	m, ok := resolveMap(txn, attrs, parentPath)
	if !ok {
		return nil, "", false
	}
	return m, key, true
}

// resolveValue returns the raw value at path.
func resolveValue(txn replica.ReadTxn, attrs *replica.Map, path Path) (any, bool) {
	m, key, ok := resolveParent(txn, attrs, path)
	if !ok {
		return nil, false
	}
	return m.Get(txn, key)
}

// GetMapWithTxn returns the map at path.
func (c *Collab) GetMapWithTxn(txn replica.ReadTxn, path Path) (*MapRefWrapper, bool) {
	m, ok := resolveMap(txn, c.attrs, path)
	if !ok {
		return nil, false
	}
	return c.mapWrapper(m), true
}

// GetArrayWithTxn returns the array at path.
func (c *Collab) GetArrayWithTxn(txn replica.ReadTxn, path Path) (*ArrayRefWrapper, bool) {
	v, ok := resolveValue(txn, c.attrs, path)
	if !ok {
		return nil, false
	}
	a, ok := v.(*replica.Array)
	if !ok {
		return nil, false
	}
	return c.arrayWrapper(a), true
}

// GetValueWithTxn returns the raw value at path. Nested containers are
// returned as *replica.Map or *replica.Array.
func (c *Collab) GetValueWithTxn(txn replica.ReadTxn, path Path) (any, bool) {
	return resolveValue(txn, c.attrs, path)
}

// GetMapWithPath returns the map at path.
func (c *Collab) GetMapWithPath(path Path) (*MapRefWrapper, bool) {
	txn := c.doc.Transact()
	defer txn.Release()
	return c.GetMapWithTxn(txn, path)
}

// GetArrayWithPath returns the array at path.
func (c *Collab) GetArrayWithPath(path Path) (*ArrayRefWrapper, bool) {
	txn := c.doc.Transact()
	defer txn.Release()
	return c.GetArrayWithTxn(txn, path)
}

// GetOrCreateMap returns the map at path, creating every missing map along
// the way in one transaction. It fails with ErrNotAMap when a segment holds a
// value that is not a map.
func (c *Collab) GetOrCreateMap(path Path) (*MapRefWrapper, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	if m, ok := c.GetMapWithPath(path); ok {
		return m, nil
	}

	return Mutate(c.ctx, func(txn *replica.TxnMut) (*MapRefWrapper, error) {
		m, err := getOrCreateMap(txn, c.attrs, path)
		if err != nil {
			return nil, err
		}
		return c.mapWrapper(m), nil
	})
}

func getOrCreateMap(txn *replica.TxnMut, attrs *replica.Map, path Path) (*replica.Map, error) {
	m := attrs
	for i, seg := range path {
		v, ok := m.Get(txn, seg)
		if !ok {
			next, err := m.InsertMap(txn, seg)
			if err != nil {
				return nil, err
			}
			m = next
			continue
		}
		next, ok := v.(*replica.Map)
		if !ok {
			return nil, fmt.Errorf("%q: %w", path[:i+1].String(), ErrNotAMap)
		}
		m = next
	}
	return m, nil
}

// InsertWithPath stores value under the last segment of path, in the map
// addressed by the preceding segments. It reports false, without error, when
// that map does not exist.
func (c *Collab) InsertWithPath(path Path, value any) (bool, error) {
	content, err := toPrelim(value)
	if err != nil {
		return false, err
	}

	return Mutate(c.ctx, func(txn *replica.TxnMut) (bool, error) {
		m, key, ok := resolveParent(txn, c.attrs, path)
		if !ok {
			return false, nil
		}
		if _, err := m.Insert(txn, key, content); err != nil {
			return false, err
		}
		return true, nil
	})
}

// RemoveWithPath removes the value at path and returns its JSON projection.
// Ancestors left empty are kept.
func (c *Collab) RemoveWithPath(path Path) (any, bool, error) {
	type removed struct {
		value any
		ok    bool
	}
	r, err := Mutate(c.ctx, func(txn *replica.TxnMut) (removed, error) {
		m, key, ok := resolveParent(txn, c.attrs, path)
		if !ok {
			return removed{}, nil
		}
		v, ok := m.Get(txn, key)
		if !ok {
			return removed{}, nil
		}
		projected := plainValue(txn, v)
		if _, _, err := m.Remove(txn, key); err != nil {
			return removed{}, err
		}
		return removed{value: projected, ok: true}, nil
	})
	return r.value, r.ok, err
}
