// Package document stores a block-structured text document in a
// collab.Collab.
//
// The attribute map holds one "document" map with two children: "blocks",
// keyed by block id, and "texts", keyed by text id.
package document

import (
	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

const (
	rootName   = "document"
	blocksName = "blocks"
	textsName  = "texts"
)

// Document is a block document backed by a Collab.
type Document struct {
	inner  *collab.Collab
	root   *collab.MapRefWrapper
	Blocks *BlockMap
	Texts  *TextMap
}

// Create opens the document stored in c, creating its maps if they do not
// exist yet. Existing content is kept.
func Create(c *collab.Collab) (*Document, error) {
	var root, blocks, texts *collab.MapRefWrapper
	err := c.WithTransactMut(func(txn *replica.TxnMut) error {
		var ok bool
		var err error

		if root, ok = c.GetMapWithTxn(txn, collab.NewPath(rootName)); !ok {
			if root, err = c.CreateMapWithTxn(txn, rootName); err != nil {
				return err
			}
		}
		if blocks, ok = root.GetMapWithTxn(txn, blocksName); !ok {
			if blocks, err = root.InsertMapWithTxn(txn, blocksName); err != nil {
				return err
			}
		}
		if texts, ok = root.GetMapWithTxn(txn, textsName); !ok {
			if texts, err = root.InsertMapWithTxn(txn, textsName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Document{
		inner:  c,
		root:   root,
		Blocks: &BlockMap{m: blocks},
		Texts:  &TextMap{m: texts},
	}, nil
}

// Collab returns the underlying document.
func (d *Document) Collab() *collab.Collab {
	return d.inner
}

// InsertBlock stores block and, when text is not empty, its text under the
// block id, in one transaction.
func (d *Document) InsertBlock(block Block, text string) error {
	if err := block.Validate(); err != nil {
		return err
	}
	return d.inner.WithTransactMut(func(txn *replica.TxnMut) error {
		if err := d.Blocks.InsertWithTxn(txn, block); err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		return d.Texts.SetWithTxn(txn, block.ID, text)
	})
}

// DeleteBlock removes the block with id and its text, in one transaction.
func (d *Document) DeleteBlock(id string) (bool, error) {
	return collab.Mutate(d.inner.Context(), func(txn *replica.TxnMut) (bool, error) {
		_, ok, err := d.Blocks.m.RemoveWithTxn(txn, id)
		if err != nil || !ok {
			return false, err
		}
		if _, _, err := d.Texts.m.RemoveWithTxn(txn, id); err != nil {
			return false, err
		}
		return true, nil
	})
}

// ToJSON returns the document as a JSON object with "blocks" and "texts".
func (d *Document) ToJSON() string {
	return d.root.ToJSON()
}
