package replica

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Automerge storage chunks are framed as magic, checksum, type, a uLEB128
// length and the payload. The checksum is the first four bytes of the
// SHA-256 of type, length and payload.
var chunkMagic = []byte{0x85, 0x6f, 0x4a, 0x83}

const (
	chunkDocument byte = iota
	chunkChange
	chunkCompressedChange
)

// checkChunks verifies that update is a sequence of intact automerge chunks.
// Automerge's incremental loader stops at the first undecodable chunk and
// keeps what came before, so damage is caught here instead.
func checkChunks(update []byte) error {
	for off := 0; off < len(update); {
		rest := update[off:]
		if len(rest) < len(chunkMagic)+5 || !bytes.Equal(rest[:len(chunkMagic)], chunkMagic) {
			return fmt.Errorf("chunk at %d: bad magic", off)
		}
		checksum := rest[4:8]
		typ := rest[8]
		if typ > chunkCompressedChange {
			return fmt.Errorf("chunk at %d: unknown type %d", off, typ)
		}

		length, n := binary.Uvarint(rest[9:])
		if n <= 0 {
			return fmt.Errorf("chunk at %d: bad length", off)
		}
		start := 9 + n
		if uint64(len(rest)-start) < length {
			return fmt.Errorf("chunk at %d: truncated", off)
		}
		end := start + int(length)

		// Compressed chunks carry the checksum of their uncompressed form.
		if typ != chunkCompressedChange {
			sum := sha256.Sum256(rest[8:end])
			if !bytes.Equal(sum[:4], checksum) {
				return fmt.Errorf("chunk at %d: checksum mismatch", off)
			}
		}
		off += end
	}
	return nil
}
