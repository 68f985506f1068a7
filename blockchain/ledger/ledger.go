// Package ledger keeps the in-memory audit chain of voter authentication
// events. Every block commits to its predecessor's digest, so rewriting any
// historical entry is detected by a full-chain validation.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voting-audit/digest"
	"voting-audit/models"
)

// Ledger is safe for concurrent use. Appends are serialized on a single write
// lock; readers capture the current prefix of the chain and walk it unlocked.
type Ledger struct {
	chain  []models.Block
	mutex  sync.RWMutex
	hasher digest.Hasher
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Ledger)

func WithHasher(h digest.Hasher) Option {
	return func(l *Ledger) { l.hasher = h }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock replaces the wall clock used to stamp blocks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger holding only the genesis block.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		hasher: digest.SHA256,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	genesis := models.NewBlock(0, l.now().UnixNano(), models.GenesisEvent(), models.GenesisPrevHash, l.hasher)
	l.chain = []models.Block{genesis}

	l.logger.Info("audit ledger initialized",
		zap.String("digest", l.hasher.Name()),
		zap.String("genesis_hash", genesis.Hash.Hex()))
	return l
}

func (l *Ledger) Hasher() digest.Hasher {
	return l.hasher
}

// Append commits event as the new tail and returns a copy of the block.
// It panics if event was not built by models.NewLoginEvent or
// models.NewLoginSuccessEvent.
func (l *Ledger) Append(event models.Event) models.Block {
	if !event.IsAuthEvent() {
		panic(fmt.Sprintf("ledger: append of non-auth event %q", event.Kind()))
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	tail := l.chain[len(l.chain)-1]

	// The wall clock may step backwards; block time never does.
	timestamp := l.now().UnixNano()
	if timestamp < tail.Timestamp {
		timestamp = tail.Timestamp
	}

	block := models.NewBlock(tail.Index+1, timestamp, event, tail.Hash, l.hasher)
	l.chain = append(l.chain, block)

	l.logger.Debug("audit block appended",
		zap.Uint64("index", block.Index),
		zap.String("action", string(event.Kind())),
		zap.Uint64("voter_id", event.VoterID()),
		zap.String("hash", block.Hash.Hex()))
	return block
}

// snapshot returns the committed prefix. Committed blocks are never written
// again, so the returned slice is safe to read without the lock; it must not
// be modified or appended to.
func (l *Ledger) snapshot() []models.Block {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.chain[:len(l.chain):len(l.chain)]
}

func (l *Ledger) Latest() models.Block {
	chain := l.snapshot()
	return chain[len(chain)-1]
}

func (l *Ledger) Len() int {
	return len(l.snapshot())
}

// Blocks returns a copy of the whole chain.
func (l *Ledger) Blocks() []models.Block {
	chain := l.snapshot()
	out := make([]models.Block, len(chain))
	copy(out, chain)
	return out
}

func (l *Ledger) BlockAt(index uint64) (models.Block, error) {
	chain := l.snapshot()
	if index >= uint64(len(chain)) {
		return models.Block{}, fmt.Errorf("%w: index %d", ErrBlockNotFound, index)
	}
	return chain[index], nil
}

func (l *Ledger) BlockByHash(hash common.Hash) (models.Block, error) {
	for _, block := range l.snapshot() {
		if block.Hash == hash {
			return block, nil
		}
	}
	return models.Block{}, fmt.Errorf("%w: hash %s", ErrBlockNotFound, hash.Hex())
}

// IsValid walks the chain from genesis and stops at the first violation.
func (l *Ledger) IsValid() bool {
	chain := l.snapshot()
	if v, bad := firstViolation(chain, l.hasher); bad {
		l.logger.Warn("audit chain validation failed",
			zap.Uint64("index", v.Index),
			zap.String("violation", string(v.Kind)))
		return false
	}
	return true
}

// Validate walks the whole chain and reports every violation found. It
// returns nil for an intact chain and a *ValidationError otherwise.
func (l *Ledger) Validate() error {
	chain := l.snapshot()
	violations := ValidateChain(chain, l.hasher)
	if len(violations) == 0 {
		return nil
	}
	l.logger.Warn("audit chain validation failed",
		zap.Int("violations", len(violations)),
		zap.Int("length", len(chain)))
	return &ValidationError{Violations: violations}
}
