// Package filelog implements persistence.DocStore with one append-only log
// file per document.
//
// Each entry is framed as a varint length, the update bytes and a CRC-32
// (Castagnoli) of the update. A torn final entry left by a crash is ignored
// on read and overwritten by the next append.
package filelog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hashicorp-forge/collab/pkg/persistence"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

const logExt = ".log"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Store keeps document logs as files under a directory of fs.
type Store struct {
	fs     afero.Fs
	dir    string
	logger hclog.Logger

	mu sync.Mutex
	// tails caches the end of the last intact entry per document so appends
	// do not rescan the log. The store must be the only writer of dir.
	tails map[string]int64
}

var _ persistence.DocStore = (*Store)(nil)

// New returns a store rooted at dir, creating the directory if needed.
func New(fs afero.Fs, dir string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Store{
		fs:     fs,
		dir:    dir,
		logger: logger.Named("filelog").With("dir", dir),
		tails:  make(map[string]int64),
	}, nil
}

func (s *Store) filename(cid string) string {
	return path.Join(s.dir, url.PathEscape(cid)+logExt)
}

// IsExist implements persistence.DocStore.
func (s *Store) IsExist(cid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := afero.Exists(s.fs, s.filename(cid))
	if err != nil {
		s.logger.Error("error checking document existence", "cid", cid, "error", err)
	}
	return ok
}

// LoadDoc implements persistence.DocStore.
func (s *Store) LoadDoc(cid string, txn *replica.TxnMut) error {
	updates, err := s.GetUpdates(cid)
	if err != nil {
		return &persistence.Error{CID: cid, Op: "load", Err: errors.Unwrap(err)}
	}
	for i, update := range updates {
		if err := txn.ApplyUpdate(update); err != nil {
			return &persistence.Error{CID: cid, Op: "load", Err: fmt.Errorf("update %d: %w", i+1, err)}
		}
	}
	s.logger.Debug("loaded document", "cid", cid, "updates", len(updates))
	return nil
}

// InsertOrCreateNewDoc implements persistence.DocStore. An existing log is
// loaded instead.
func (s *Store) InsertOrCreateNewDoc(cid string, txn *replica.TxnMut) error {
	snapshot, err := replica.EncodeStateAsUpdate(txn, nil)
	if err != nil {
		return &persistence.Error{CID: cid, Op: "create", Err: err}
	}

	created, err := s.create(cid, snapshot)
	if err != nil {
		return &persistence.Error{CID: cid, Op: "create", Err: err}
	}
	if !created {
		s.logger.Warn("document already exists, loading it", "cid", cid)
		return s.LoadDoc(cid, txn)
	}

	s.logger.Debug("created document", "cid", cid, "snapshot_bytes", len(snapshot))
	return nil
}

// create writes a new log holding snapshot. It reports false when the log
// already exists.
func (s *Store) create(cid string, snapshot []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.OpenFile(s.filename(cid), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	var data []byte
	if len(snapshot) > 0 {
		data = frame(nil, snapshot)
		if _, err := f.Write(data); err != nil {
			delete(s.tails, cid)
			return false, err
		}
	}
	s.tails[cid] = int64(len(data))
	return true, nil
}

// PushUpdate implements persistence.DocStore. The log is created if needed.
func (s *Store) PushUpdate(cid string, update []byte) error {
	if len(update) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.filename(cid)
	valid, ok := s.tails[cid]
	if !ok {
		var err error
		_, valid, err = s.read(name)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return &persistence.Error{CID: cid, Op: "append", Err: err}
		}
	}

	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return &persistence.Error{CID: cid, Op: "append", Err: err}
	}
	defer f.Close()

	// Drop a torn tail before appending.
	entry := frame(nil, update)
	if err := f.Truncate(valid); err != nil {
		delete(s.tails, cid)
		return &persistence.Error{CID: cid, Op: "append", Err: err}
	}
	if _, err := f.WriteAt(entry, valid); err != nil {
		delete(s.tails, cid)
		return &persistence.Error{CID: cid, Op: "append", Err: err}
	}
	s.tails[cid] = valid + int64(len(entry))
	return nil
}

// GetUpdates implements persistence.DocStore.
func (s *Store) GetUpdates(cid string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates, valid, err := s.read(s.filename(cid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &persistence.Error{CID: cid, Op: "read", Err: persistence.ErrDocNotFound}
	}
	if err != nil {
		return nil, &persistence.Error{CID: cid, Op: "read", Err: err}
	}
	s.tails[cid] = valid
	return updates, nil
}

// Flush implements persistence.DocStore. The snapshot is written to a
// temporary file that replaces the log.
func (s *Store) Flush(cid string, txn replica.ReadTxn) error {
	snapshot, err := replica.EncodeStateAsUpdate(txn, nil)
	if err != nil {
		return &persistence.Error{CID: cid, Op: "flush", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tails, cid)

	name := s.filename(cid)
	before, _, err := s.read(name)
	if errors.Is(err, os.ErrNotExist) {
		return &persistence.Error{CID: cid, Op: "flush", Err: persistence.ErrDocNotFound}
	}
	if err != nil {
		return &persistence.Error{CID: cid, Op: "flush", Err: err}
	}

	var data []byte
	if len(snapshot) > 0 {
		data = frame(nil, snapshot)
	}
	tmp := name + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return &persistence.Error{CID: cid, Op: "flush", Err: err}
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return &persistence.Error{CID: cid, Op: "flush", Err: err}
	}
	s.tails[cid] = int64(len(data))

	s.logger.Info("flushed document", "cid", cid, "updates_before", len(before))
	return nil
}

// DeleteDoc implements persistence.DocStore.
func (s *Store) DeleteDoc(cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tails, cid)

	err := s.fs.Remove(s.filename(cid))
	if errors.Is(err, os.ErrNotExist) {
		return &persistence.Error{CID: cid, Op: "delete", Err: persistence.ErrDocNotFound}
	}
	if err != nil {
		return &persistence.Error{CID: cid, Op: "delete", Err: err}
	}

	s.logger.Info("deleted document", "cid", cid)
	return nil
}

// NumberOfDocs implements persistence.DocStore.
func (s *Store) NumberOfDocs() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cids, err := s.cids()
	if err != nil {
		return 0, err
	}
	return int64(len(cids)), nil
}

// ListDocs implements persistence.DocStore.
func (s *Store) ListDocs() ([]persistence.DocInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cids, err := s.cids()
	if err != nil {
		return nil, err
	}

	infos := make([]persistence.DocInfo, 0, len(cids))
	for _, cid := range cids {
		name := s.filename(cid)
		fi, err := s.fs.Stat(name)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", cid, err)
		}
		updates, _, err := s.read(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", cid, err)
		}
		infos = append(infos, persistence.DocInfo{
			CID:       cid,
			Updates:   len(updates),
			UpdatedAt: fi.ModTime(),
		})
	}
	return infos, nil
}

// cids returns the ids of every stored document, sorted.
func (s *Store) cids() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var cids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logExt) {
			continue
		}
		cid, err := url.PathUnescape(strings.TrimSuffix(e.Name(), logExt))
		if err != nil {
			s.logger.Warn("skipping unrecognized log file", "name", e.Name())
			continue
		}
		cids = append(cids, cid)
	}
	sort.Strings(cids)
	return cids, nil
}

// read returns the intact entries of a log file and the offset just past
// the last one. A checksum mismatch in a complete entry is an error.
func (s *Store) read(name string) ([][]byte, int64, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}

	var (
		updates [][]byte
		off     int
	)
	for off < len(data) {
		update, n := protowire.ConsumeBytes(data[off:])
		if n < 0 || off+n+4 > len(data) {
			s.logger.Warn("ignoring torn log entry", "file", name, "offset", off)
			break
		}
		sum := binary.BigEndian.Uint32(data[off+n:])
		if crc32.Checksum(update, castagnoli) != sum {
			return nil, 0, fmt.Errorf("checksum mismatch at offset %d", off)
		}
		updates = append(updates, update)
		off += n + 4
	}
	return updates, int64(off), nil
}

// frame appends one log entry holding update to b.
func frame(b, update []byte) []byte {
	b = protowire.AppendBytes(b, update)
	return binary.BigEndian.AppendUint32(b, crc32.Checksum(update, castagnoli))
}
