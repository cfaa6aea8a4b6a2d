package collab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// plainValue projects a stored value to plain Go data.
func plainValue(txn replica.ReadTxn, v any) any {
	switch x := v.(type) {
	case *replica.Map:
		return x.ToJSON(txn)
	case *replica.Array:
		return x.ToJSON(txn)
	default:
		return v
	}
}

// toPrelim converts plain Go maps and slices into prelims, recursively, so
// they become nested containers when inserted. JSON numbers become int64,
// uint64 when they only fit there, or float64 when they are not integral.
// Other values are returned unchanged.
func toPrelim(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		return mapPrelim(x)
	case replica.MapPrelim:
		return mapPrelim(x)
	case []any:
		return arrayPrelim(x)
	case replica.ArrayPrelim:
		return arrayPrelim(x)
	case []string:
		a := make(replica.ArrayPrelim, len(x))
		for i, e := range x {
			a[i] = e
		}
		return a, nil
	case json.Number:
		return numberValue(x)
	default:
		return v, nil
	}
}

func mapPrelim(x map[string]any) (replica.MapPrelim, error) {
	m := make(replica.MapPrelim, len(x))
	for k, e := range x {
		v, err := toPrelim(e)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func arrayPrelim(x []any) (replica.ArrayPrelim, error) {
	a := make(replica.ArrayPrelim, len(x))
	for i, e := range x {
		v, err := toPrelim(e)
		if err != nil {
			return nil, err
		}
		a[i] = v
	}
	return a, nil
}

func numberValue(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u, nil
	}
	// An integer literal that parsed as neither would lose digits as a float.
	if !strings.ContainsAny(n.String(), ".eE") {
		return nil, fmt.Errorf("%w: %s", ErrNumberOverflow, n)
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNumberOverflow, n)
	}
	return f, nil
}

// jsonPrelim serializes v to JSON and returns it as insertable content:
// objects become MapPrelim, arrays ArrayPrelim, and numbers as in toPrelim.
func jsonPrelim(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeJSONPrelim(data)
}

func decodeJSONPrelim(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return toPrelim(decoded)
}

// decodeJSONValue converts a projection into T by round-tripping it through
// JSON.
func decodeJSONValue[T any](path Path, v any) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, &SerializationError{Path: path, Err: err}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &SerializationError{Path: path, Err: err}
	}
	return out, nil
}

func marshalString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
