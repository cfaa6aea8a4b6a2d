package document

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/mapstructure"

	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Block is one node of the document tree.
type Block struct {
	ID string `json:"id" mapstructure:"id"`

	// Ty is the block type, e.g. "page", "text" or "heading".
	Ty string `json:"ty" mapstructure:"ty"`

	// Parent is the id of the parent block; empty for the page block.
	Parent string `json:"parent" mapstructure:"parent"`

	// Children lists the ids of the child blocks in order.
	Children []string `json:"children" mapstructure:"children"`

	Data map[string]any `json:"data" mapstructure:"data"`
}

// Validate checks the block's required fields.
func (b Block) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.ID, validation.Required),
		validation.Field(&b.Ty, validation.Required),
	)
}

// BlockMap holds a document's blocks keyed by id.
type BlockMap struct {
	m *collab.MapRefWrapper
}

// Insert stores block, replacing any block with the same id.
func (bm *BlockMap) Insert(block Block) error {
	if err := block.Validate(); err != nil {
		return err
	}
	return bm.m.WithTransactMut(func(txn *replica.TxnMut) error {
		return bm.InsertWithTxn(txn, block)
	})
}

// InsertWithTxn stores block.
func (bm *BlockMap) InsertWithTxn(txn *replica.TxnMut, block Block) error {
	if block.Children == nil {
		block.Children = []string{}
	}
	if block.Data == nil {
		block.Data = map[string]any{}
	}
	return bm.m.InsertJSONWithTxn(txn, block.ID, block)
}

// Get returns the block with id.
func (bm *BlockMap) Get(id string) (*Block, bool, error) {
	m, ok := bm.m.GetMap(id)
	if !ok {
		return nil, false, nil
	}
	block, err := decodeBlock(m.ToJSONValue())
	if err != nil {
		return nil, true, fmt.Errorf("block %q: %w", id, err)
	}
	return block, true, nil
}

// SetData replaces the data of the block with id. It reports false when no
// such block exists.
func (bm *BlockMap) SetData(id string, data map[string]any) (bool, error) {
	return collab.Mutate(bm.m.Context(), func(txn *replica.TxnMut) (bool, error) {
		block, ok := bm.m.GetMapWithTxn(txn, id)
		if !ok {
			return false, nil
		}
		return true, block.InsertJSONWithTxn(txn, "data", data)
	})
}

// AppendChild adds childID to the children of the block with id. It reports
// false when no such block exists.
func (bm *BlockMap) AppendChild(id, childID string) (bool, error) {
	return collab.Mutate(bm.m.Context(), func(txn *replica.TxnMut) (bool, error) {
		block, ok := bm.m.GetMapWithTxn(txn, id)
		if !ok {
			return false, nil
		}
		children, ok := block.GetArrayWithTxn(txn, "children")
		if !ok {
			_, err := block.InsertArrayWithTxn(txn, "children", childID)
			return true, err
		}
		return true, children.PushWithTxn(txn, childID)
	})
}

// Remove deletes the block with id.
func (bm *BlockMap) Remove(id string) (bool, error) {
	_, ok, err := bm.m.Remove(id)
	return ok, err
}

// IDs returns the block ids in ascending order.
func (bm *BlockMap) IDs() []string {
	return bm.m.Keys()
}

// Len returns the number of blocks.
func (bm *BlockMap) Len() int {
	return bm.m.Len()
}

func decodeBlock(raw map[string]any) (*Block, error) {
	var block Block
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &block,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	return &block, nil
}
