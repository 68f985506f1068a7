package models

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"voting-audit/digest"
)

// GenesisPrevHash is the predecessor reference of block 0.
var GenesisPrevHash = common.Hash{}

type Block struct {
	Index     uint64      `json:"index"`
	Timestamp int64       `json:"timestamp"` // Unix nanoseconds
	Payload   Event       `json:"payload"`
	PrevHash  common.Hash `json:"prev_hash"`
	Hash      common.Hash `json:"hash"`
}

func NewBlock(index uint64, timestamp int64, payload Event, prevHash common.Hash, h digest.Hasher) Block {
	block := Block{
		Index:     index,
		Timestamp: timestamp,
		Payload:   payload,
		PrevHash:  prevHash,
	}
	block.Hash = block.RecomputeHash(h)
	return block
}

// RecomputeHash derives the digest from the block's stored fields. The stored
// Hash is not part of the input.
func (b Block) RecomputeHash(h digest.Hasher) common.Hash {
	return h.Sum(b.canonical())
}

func (b Block) canonical() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	b.Payload.Canonical(buffer)
	buffer.Write(b.PrevHash[:])
	return buffer.Bytes()
}
