package replica

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/automerge/automerge-go"
)

// ErrUnsupportedValue is returned when a value cannot be stored in a
// container. Supported values are nil, bool, integers, finite floats,
// strings, MapPrelim and ArrayPrelim.
var ErrUnsupportedValue = errors.New("unsupported value")

// MapPrelim is the content of a map that does not exist yet. Inserting it
// creates a nested map and fills it with the entries.
type MapPrelim map[string]any

// ArrayPrelim is the content of an array that does not exist yet. Inserting
// it creates a nested array and appends the elements.
type ArrayPrelim []any

// toValue converts a Go value into what is written to automerge. Signed
// integers are stored as int64 and unsigned ones too unless they overflow
// it, in which case they keep their uint64 kind. Prelims become detached
// automerge containers; their content is returned separately and written by
// fill once the container is attached.
func toValue(v any) (any, any, error) {
	switch x := v.(type) {
	case nil, bool, string:
		return x, nil, nil
	case int:
		return int64(x), nil, nil
	case int8:
		return int64(x), nil, nil
	case int16:
		return int64(x), nil, nil
	case int32:
		return int64(x), nil, nil
	case int64:
		return x, nil, nil
	case uint8:
		return int64(x), nil, nil
	case uint16:
		return int64(x), nil, nil
	case uint32:
		return int64(x), nil, nil
	case uint:
		return fromUint64(uint64(x)), nil, nil
	case uint64:
		return fromUint64(x), nil, nil
	case float32:
		return fromFloat64(float64(x))
	case float64:
		return fromFloat64(x)
	case MapPrelim:
		for k, e := range x {
			if err := check(e); err != nil {
				return nil, nil, fmt.Errorf("key %q: %w", k, err)
			}
		}
		return automerge.NewMap(), x, nil
	case ArrayPrelim:
		for i, e := range x {
			if err := check(e); err != nil {
				return nil, nil, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return automerge.NewList(), x, nil
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func fromUint64(x uint64) any {
	if x > math.MaxInt64 {
		return x
	}
	return int64(x)
}

func fromFloat64(x float64) (any, any, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, nil, fmt.Errorf("%w: non-finite float %v", ErrUnsupportedValue, x)
	}
	return x, nil, nil
}

// check validates v and everything nested in it without writing anything.
func check(v any) error {
	_, _, err := toValue(v)
	return err
}

// fill writes prelim content into the container it was just attached as.
func fill(stored, content any) error {
	switch c := stored.(type) {
	case *automerge.Map:
		entries := content.(MapPrelim)
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			sv, nested, err := toValue(entries[k])
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			if err := c.Set(k, sv); err != nil {
				return fmt.Errorf("set %q: %w", k, err)
			}
			if err := fill(sv, nested); err != nil {
				return err
			}
		}
	case *automerge.List:
		for i, e := range content.(ArrayPrelim) {
			sv, nested, err := toValue(e)
			if err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
			if err := c.Append(sv); err != nil {
				return fmt.Errorf("append %d: %w", i, err)
			}
			if err := fill(sv, nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// wrapStored returns what an insert hands back for the value it wrote.
func (d *Doc) wrapStored(path []any, stored any) any {
	switch stored.(type) {
	case *automerge.Map:
		return d.mapHandle(path)
	case *automerge.List:
		return d.arrayHandle(path)
	default:
		return stored
	}
}

// plain converts a read value into Go data.
func plain(v *automerge.Value) any {
	return v.Interface()
}

func appendPath(path []any, seg any) []any {
	out := make([]any, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// pathKey renders a path unambiguously: keys quoted, indexes bracketed.
func pathKey(path []any) string {
	if len(path) == 0 {
		return "root"
	}
	var b strings.Builder
	for i, seg := range path {
		switch s := seg.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(strconv.Quote(s))
		case int:
			b.WriteString("[" + strconv.Itoa(s) + "]")
		}
	}
	return b.String()
}
