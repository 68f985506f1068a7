package digest

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Hasher turns a canonical block encoding into a fixed-size digest.
type Hasher interface {
	Name() string
	Sum(data []byte) common.Hash
}

const (
	NameSHA256    = "sha256"
	NameSHA3_256  = "sha3-256"
	NameKeccak256 = "keccak256"
)

type sha256Hasher struct{}

func (sha256Hasher) Name() string { return NameSHA256 }
func (sha256Hasher) Sum(data []byte) common.Hash {
	return common.Hash(sha256.Sum256(data))
}

type sha3Hasher struct{}

func (sha3Hasher) Name() string { return NameSHA3_256 }
func (sha3Hasher) Sum(data []byte) common.Hash {
	return common.Hash(sha3.Sum256(data))
}

type keccakHasher struct{}

func (keccakHasher) Name() string { return NameKeccak256 }
func (keccakHasher) Sum(data []byte) common.Hash {
	return crypto.Keccak256Hash(data)
}

var (
	SHA256    Hasher = sha256Hasher{}
	SHA3_256  Hasher = sha3Hasher{}
	Keccak256 Hasher = keccakHasher{}
)

// ByName resolves a hasher from its configured name. An empty name selects SHA256.
func ByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameSHA256:
		return SHA256, nil
	case NameSHA3_256:
		return SHA3_256, nil
	case NameKeccak256:
		return Keccak256, nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q", name)
	}
}
