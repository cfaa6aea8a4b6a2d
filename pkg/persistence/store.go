// Package persistence stores the update logs of collaborative documents.
//
// Every committed change to a document is one opaque update. A document's
// state is reconstructed by applying its log, in order, to an empty document.
// Flush compacts a log into a single snapshot update.
package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/collab/pkg/replica"
)

// ErrDocNotFound is returned for operations on a document that was never
// created or has been deleted.
var ErrDocNotFound = errors.New("document not found")

// Error reports a failed store operation on one document.
type Error struct {
	CID string
	Op  string // "load", "create", "append", "delete", "read", "flush"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.CID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DocInfo summarizes a stored document.
type DocInfo struct {
	CID       string    `json:"cid" yaml:"cid"`
	Updates   int       `json:"updates" yaml:"updates"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// DocStore is a durable per-document update log.
type DocStore interface {
	// IsExist reports whether a log exists for cid.
	IsExist(cid string) bool

	// LoadDoc applies the stored log of cid to txn, in order.
	LoadDoc(cid string, txn *replica.TxnMut) error

	// InsertOrCreateNewDoc creates the log of cid, seeded with the current
	// state of txn's document. When the log already exists it is applied to
	// txn instead, as LoadDoc does.
	InsertOrCreateNewDoc(cid string, txn *replica.TxnMut) error

	// PushUpdate appends update to the log of cid.
	PushUpdate(cid string, update []byte) error

	// GetUpdates returns the stored log of cid.
	GetUpdates(cid string) ([][]byte, error)

	// Flush replaces the log of cid with one update holding the state of
	// txn's document.
	Flush(cid string, txn replica.ReadTxn) error

	// DeleteDoc removes cid and its log.
	DeleteDoc(cid string) error

	// NumberOfDocs returns the number of stored documents.
	NumberOfDocs() (int64, error)

	// ListDocs summarizes every stored document, ordered by cid.
	ListDocs() ([]DocInfo, error)
}

// CollabKV is a DocStore on a SQL database.
type CollabKV struct {
	db     *gorm.DB
	logger hclog.Logger
}

var _ DocStore = (*CollabKV)(nil)

// NewCollabKV returns a store on db. The schema must exist; see Migrate.
func NewCollabKV(db *gorm.DB, logger hclog.Logger) *CollabKV {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CollabKV{
		db:     db,
		logger: logger.Named("collab-kv"),
	}
}

// DB returns the underlying database handle.
func (kv *CollabKV) DB() *gorm.DB {
	return kv.db
}

// IsExist implements DocStore.
func (kv *CollabKV) IsExist(cid string) bool {
	var count int64
	if err := kv.db.Model(&Document{}).Where("cid = ?", cid).Count(&count).Error; err != nil {
		kv.logger.Error("error checking document existence", "cid", cid, "error", err)
		return false
	}
	return count > 0
}

// LoadDoc implements DocStore.
func (kv *CollabKV) LoadDoc(cid string, txn *replica.TxnMut) error {
	updates, err := kv.GetUpdates(cid)
	if err != nil {
		return &Error{CID: cid, Op: "load", Err: errors.Unwrap(err)}
	}
	for i, update := range updates {
		if err := txn.ApplyUpdate(update); err != nil {
			return &Error{CID: cid, Op: "load", Err: fmt.Errorf("update %d: %w", i+1, err)}
		}
	}
	kv.logger.Debug("loaded document", "cid", cid, "updates", len(updates))
	return nil
}

// InsertOrCreateNewDoc implements DocStore. A document that already exists,
// created concurrently or missed by a failing IsExist, is loaded instead.
func (kv *CollabKV) InsertOrCreateNewDoc(cid string, txn *replica.TxnMut) error {
	snapshot, err := replica.EncodeStateAsUpdate(txn, nil)
	if err != nil {
		return &Error{CID: cid, Op: "create", Err: err}
	}

	err = kv.db.Transaction(func(tx *gorm.DB) error {
		doc := &Document{CID: cid}
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return nil
		}
		return appendUpdate(tx, doc, snapshot)
	})
	if isUniqueViolation(err) {
		kv.logger.Warn("document already exists, loading it", "cid", cid)
		return kv.LoadDoc(cid, txn)
	}
	if err != nil {
		return &Error{CID: cid, Op: "create", Err: err}
	}

	kv.logger.Debug("created document", "cid", cid, "snapshot_bytes", len(snapshot))
	return nil
}

// PushUpdate implements DocStore. The document is created if needed.
func (kv *CollabKV) PushUpdate(cid string, update []byte) error {
	if len(update) == 0 {
		return nil
	}

	err := kv.db.Transaction(func(tx *gorm.DB) error {
		doc, err := findDocument(tx, cid)
		if isNotFound(err) {
			doc = &Document{CID: cid}
			err = tx.Create(doc).Error
		}
		if err != nil {
			return err
		}
		return appendUpdate(tx, doc, update)
	})
	if err != nil {
		return &Error{CID: cid, Op: "append", Err: err}
	}
	return nil
}

// appendUpdate stores update as the next entry of doc's log.
func appendUpdate(tx *gorm.DB, doc *Document, update []byte) error {
	entry := &DocumentUpdate{
		DocumentID: doc.ID,
		Seq:        doc.UpdateCount + 1,
		Data:       update,
		Checksum:   ComputeChecksum(update),
	}
	if err := tx.Create(entry).Error; err != nil {
		return err
	}
	doc.UpdateCount = entry.Seq
	return tx.Model(doc).Update("update_count", entry.Seq).Error
}

// GetUpdates implements DocStore.
func (kv *CollabKV) GetUpdates(cid string) ([][]byte, error) {
	doc, err := findDocument(kv.db, cid)
	if isNotFound(err) {
		return nil, &Error{CID: cid, Op: "read", Err: ErrDocNotFound}
	}
	if err != nil {
		return nil, &Error{CID: cid, Op: "read", Err: err}
	}

	rows, err := findUpdates(kv.db, doc.ID)
	if err != nil {
		return nil, &Error{CID: cid, Op: "read", Err: err}
	}

	updates := make([][]byte, 0, len(rows))
	for _, row := range rows {
		if row.Checksum != ComputeChecksum(row.Data) {
			return nil, &Error{CID: cid, Op: "read", Err: fmt.Errorf("checksum mismatch in update %d", row.Seq)}
		}
		updates = append(updates, row.Data)
	}
	return updates, nil
}

// Flush implements DocStore.
func (kv *CollabKV) Flush(cid string, txn replica.ReadTxn) error {
	snapshot, err := replica.EncodeStateAsUpdate(txn, nil)
	if err != nil {
		return &Error{CID: cid, Op: "flush", Err: err}
	}

	var before int
	err = kv.db.Transaction(func(tx *gorm.DB) error {
		doc, err := findDocument(tx, cid)
		if isNotFound(err) {
			return ErrDocNotFound
		}
		if err != nil {
			return err
		}
		before = doc.UpdateCount

		if err := tx.Where("document_id = ?", doc.ID).Delete(&DocumentUpdate{}).Error; err != nil {
			return err
		}
		doc.UpdateCount = 0
		if len(snapshot) == 0 {
			return tx.Model(doc).Update("update_count", 0).Error
		}
		return appendUpdate(tx, doc, snapshot)
	})
	if err != nil {
		return &Error{CID: cid, Op: "flush", Err: err}
	}

	kv.logger.Info("flushed document", "cid", cid, "updates_before", before)
	return nil
}

// DeleteDoc implements DocStore.
func (kv *CollabKV) DeleteDoc(cid string) error {
	err := kv.db.Transaction(func(tx *gorm.DB) error {
		doc, err := findDocument(tx, cid)
		if isNotFound(err) {
			return ErrDocNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&DocumentUpdate{}).Error; err != nil {
			return err
		}
		return tx.Delete(doc).Error
	})
	if err != nil {
		return &Error{CID: cid, Op: "delete", Err: err}
	}

	kv.logger.Info("deleted document", "cid", cid)
	return nil
}

// NumberOfDocs implements DocStore.
func (kv *CollabKV) NumberOfDocs() (int64, error) {
	var count int64
	if err := kv.db.Model(&Document{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// ListDocs implements DocStore.
func (kv *CollabKV) ListDocs() ([]DocInfo, error) {
	var docs []Document
	if err := kv.db.Order("cid ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	infos := make([]DocInfo, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, DocInfo{
			CID:       d.CID,
			Updates:   d.UpdateCount,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return infos, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation reports whether err is a duplicate key error, either
// translated by gorm or reported by postgres.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
