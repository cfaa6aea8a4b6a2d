package replica

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/automerge/automerge-go"
)

// ChangeInfo describes one automerge change carried by an update.
type ChangeInfo struct {
	Hash   string    `json:"hash" yaml:"hash"`
	Actor  string    `json:"actor" yaml:"actor"`
	Seq    uint64    `json:"seq" yaml:"seq"`
	Deps   []string  `json:"deps,omitempty" yaml:"deps,omitempty"`
	Origin string    `json:"origin,omitempty" yaml:"origin,omitempty"`
	Time   time.Time `json:"time" yaml:"time"`
}

// PathChange is a value that an update set or deleted. Paths join map keys
// with "/"; arrays are reported as whole values.
type PathChange struct {
	Path    string `json:"path" yaml:"path"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// UpdateInfo is the decoded form of one update.
type UpdateInfo struct {
	Changes []ChangeInfo `json:"changes" yaml:"changes"`
	Values  []PathChange `json:"values" yaml:"values"`
}

// DecodeUpdates replays updates in order on a scratch document and reports,
// for each, the changes it integrated and the values it changed. A change
// whose dependencies are missing is reported with the update that completes
// them.
func DecodeUpdates(updates [][]byte) ([]UpdateInfo, error) {
	am := loadGenesis()
	prev := map[string]any{}

	infos := make([]UpdateInfo, 0, len(updates))
	for i, update := range updates {
		heads := am.Heads()
		if err := checkChunks(update); err != nil {
			return nil, fmt.Errorf("update %d: %w: %v", i+1, ErrMalformedUpdate, err)
		}
		if err := am.LoadIncremental(update); err != nil {
			return nil, fmt.Errorf("update %d: %w: %v", i+1, ErrMalformedUpdate, err)
		}
		changes, err := am.Changes(heads...)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i+1, err)
		}

		info := UpdateInfo{Changes: make([]ChangeInfo, 0, len(changes))}
		for _, c := range changes {
			info.Changes = append(info.Changes, changeInfo(c))
		}

		cur := flatten(am.Root().Interface().(map[string]any))
		info.Values = diffPaths(prev, cur)
		prev = cur

		infos = append(infos, info)
	}
	return infos, nil
}

func changeInfo(c *automerge.Change) ChangeInfo {
	deps := c.Dependencies()
	info := ChangeInfo{
		Hash:   c.Hash().String(),
		Actor:  c.ActorID(),
		Seq:    c.ActorSeq(),
		Origin: c.Message(),
		Time:   c.Timestamp(),
	}
	for _, d := range deps {
		if d == genesis.hash {
			continue
		}
		info.Deps = append(info.Deps, d.String())
	}
	return info
}

// flatten maps every leaf of nested maps to its "/" joined path.
func flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix []string, m map[string]any)
	walk = func(prefix []string, m map[string]any) {
		for k, v := range m {
			path := append(prefix[:len(prefix):len(prefix)], k)
			if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
				walk(path, nested)
				continue
			}
			out[strings.Join(path, "/")] = v
		}
	}
	walk(nil, m)
	return out
}

func diffPaths(prev, cur map[string]any) []PathChange {
	var out []PathChange
	for p, v := range cur {
		if pv, ok := prev[p]; !ok || !reflect.DeepEqual(pv, v) {
			out = append(out, PathChange{Path: p, Value: v})
		}
	}
	for p := range prev {
		if _, ok := cur[p]; !ok {
			out = append(out, PathChange{Path: p, Deleted: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
