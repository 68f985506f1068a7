package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-audit/digest"
	"voting-audit/models"
)

func loginEvent(voterID uint64) models.Event {
	return models.NewLoginEvent(voterID, "1234 5678 9012", time.Now())
}

func newLedgerWith(t *testing.T, n int, opts ...Option) *Ledger {
	t.Helper()
	l := New(opts...)
	for i := 0; i < n; i++ {
		l.Append(loginEvent(uint64(i + 1)))
	}
	return l
}

func TestNewLedgerHasGenesis(t *testing.T) {
	l := New()

	require.Equal(t, 1, l.Len())
	genesis := l.Latest()
	assert.Equal(t, uint64(0), genesis.Index)
	assert.Equal(t, models.GenesisPrevHash, genesis.PrevHash)
	assert.Equal(t, models.KindGenesis, genesis.Payload.Kind())
	assert.Equal(t, genesis.Hash, genesis.RecomputeHash(digest.SHA256))
	assert.True(t, l.IsValid())
}

func TestSequentialAppendsStayValid(t *testing.T) {
	for _, n := range []int{1, 2, 10, 100} {
		l := newLedgerWith(t, n)

		assert.True(t, l.IsValid())
		assert.NoError(t, l.Validate())

		blocks := l.Blocks()
		require.Len(t, blocks, n+1)
		for i, b := range blocks {
			assert.Equal(t, uint64(i), b.Index)
			if i > 0 {
				assert.Equal(t, blocks[i-1].Hash, b.PrevHash)
				assert.GreaterOrEqual(t, b.Timestamp, blocks[i-1].Timestamp)
			}
		}
	}
}

func TestAppendReturnsCommittedBlock(t *testing.T) {
	l := New()
	genesis := l.Latest()

	block := l.Append(loginEvent(1))

	assert.Equal(t, uint64(1), block.Index)
	assert.Equal(t, genesis.Hash, block.PrevHash)
	assert.Equal(t, block, l.Latest())
}

func TestAppendRejectsNonAuthEvents(t *testing.T) {
	l := New()

	assert.Panics(t, func() { l.Append(models.Event{}) })
	assert.Panics(t, func() { l.Append(models.GenesisEvent()) })
	assert.Equal(t, 1, l.Len())
}

func TestTimestampsNeverRegress(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Second), base.Add(-time.Hour), base.Add(2 * time.Second)}
	var calls int
	clock := func() time.Time {
		now := ticks[calls%len(ticks)]
		calls++
		return now
	}

	l := newLedgerWith(t, 3, WithClock(clock))

	blocks := l.Blocks()
	assert.Equal(t, blocks[1].Timestamp, blocks[2].Timestamp, "clamped to the tail's timestamp")
	assert.True(t, l.IsValid())
}

func TestTamperingNonTailBlockIsDetected(t *testing.T) {
	mutations := map[string]func(b *models.Block){
		"payload":   func(b *models.Block) { b.Payload = models.NewLoginSuccessEvent(99, "0000 0000 0000", time.Now()) },
		"timestamp": func(b *models.Block) { b.Timestamp++ },
		"hash":      func(b *models.Block) { b.Hash = common.HexToHash("0xbad") },
		"prev_hash": func(b *models.Block) { b.PrevHash = common.HexToHash("0xbad") },
		"index":     func(b *models.Block) { b.Index += 10 },
	}

	for name, mutate := range mutations {
		for _, target := range []int{0, 1, 3} {
			t.Run(name, func(t *testing.T) {
				l := newLedgerWith(t, 5)
				require.True(t, l.IsValid())

				mutate(&l.chain[target])

				assert.False(t, l.IsValid())
				err := l.Validate()
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrIntegrityViolation))
			})
		}
	}
}

func TestTamperingTailHashIsDetected(t *testing.T) {
	l := newLedgerWith(t, 3)
	tail := len(l.chain) - 1
	l.chain[tail].Hash = common.HexToHash("0x1234")

	assert.False(t, l.IsValid())

	var verr *ValidationError
	require.ErrorAs(t, l.Validate(), &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, ViolationHashMismatch, verr.Violations[0].Kind)
	assert.Equal(t, uint64(tail), verr.Violations[0].Index)
}

func TestSplicingForeignBlockIsDetected(t *testing.T) {
	l := newLedgerWith(t, 4)
	other := newLedgerWith(t, 4)

	foreign, err := other.BlockAt(2)
	require.NoError(t, err)
	require.Equal(t, foreign.Hash, foreign.RecomputeHash(digest.SHA256), "foreign block is internally consistent")

	l.chain[2] = foreign

	assert.False(t, l.IsValid())
	var verr *ValidationError
	require.ErrorAs(t, l.Validate(), &verr)
	kinds := make([]ViolationKind, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		kinds = append(kinds, v.Kind)
	}
	assert.Contains(t, kinds, ViolationBrokenLink)
}

func TestDeletingBlockIsDetected(t *testing.T) {
	l := newLedgerWith(t, 4)
	l.chain = append(l.chain[:2:2], l.chain[3:]...)

	assert.False(t, l.IsValid())
}

func TestConcurrentAppendsDoNotFork(t *testing.T) {
	const k = 64
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			l.Append(loginEvent(id))
		}(uint64(i))
	}
	wg.Wait()

	assert.True(t, l.IsValid())
	blocks := l.Blocks()
	require.Len(t, blocks, k+1)

	indices := make(map[uint64]bool)
	prevHashes := make(map[common.Hash]bool)
	for _, b := range blocks {
		assert.False(t, indices[b.Index], "duplicate index %d", b.Index)
		assert.False(t, prevHashes[b.PrevHash], "fork at %s", b.PrevHash.Hex())
		indices[b.Index] = true
		prevHashes[b.PrevHash] = true
	}
}

func TestReadsDuringAppends(t *testing.T) {
	l := New()
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			l.Append(loginEvent(uint64(i)))
		}
		close(done)
	}()

	for {
		select {
		case <-done:
			wg.Wait()
			assert.True(t, l.IsValid())
			assert.Equal(t, 201, l.Len())
			return
		default:
			assert.True(t, l.IsValid())
			latest := l.Latest()
			assert.Equal(t, latest.Hash, latest.RecomputeHash(l.Hasher()))
		}
	}
}

func TestLoginScenario(t *testing.T) {
	l := New()

	first := l.Append(models.NewLoginEvent(1, "1234 5678 9012", time.Now()))
	l.Append(models.NewLoginSuccessEvent(1, "1234 5678 9012", time.Now()))

	assert.True(t, l.IsValid())
	latest := l.Latest()
	assert.Equal(t, uint64(2), latest.Index)
	assert.Equal(t, first.Hash, latest.PrevHash)
	assert.Equal(t, models.KindLoginSuccess, latest.Payload.Kind())
}

func TestIsValidIsIdempotent(t *testing.T) {
	l := newLedgerWith(t, 5)
	before := l.Blocks()

	for i := 0; i < 5; i++ {
		assert.True(t, l.IsValid())
	}
	assert.Equal(t, before, l.Blocks())

	l.chain[2].Timestamp++
	for i := 0; i < 3; i++ {
		assert.False(t, l.IsValid())
	}
	assert.Equal(t, len(before), l.Len())
}

func TestBlocksReturnsCopy(t *testing.T) {
	l := newLedgerWith(t, 2)

	blocks := l.Blocks()
	blocks[1].Hash = common.HexToHash("0xff")

	assert.True(t, l.IsValid())
}

func TestBlockLookup(t *testing.T) {
	l := newLedgerWith(t, 3)
	latest := l.Latest()

	b, err := l.BlockAt(3)
	require.NoError(t, err)
	assert.Equal(t, latest, b)

	b, err = l.BlockByHash(latest.Hash)
	require.NoError(t, err)
	assert.Equal(t, latest, b)

	_, err = l.BlockAt(4)
	assert.ErrorIs(t, err, ErrBlockNotFound)
	_, err = l.BlockByHash(common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestAlternativeHashers(t *testing.T) {
	for _, h := range []digest.Hasher{digest.SHA3_256, digest.Keccak256} {
		l := newLedgerWith(t, 3, WithHasher(h))
		assert.True(t, l.IsValid(), h.Name())
		assert.NotEmpty(t, ValidateChain(l.Blocks(), digest.SHA256), "chain is bound to its hasher")
	}
}

func TestValidateChainEmpty(t *testing.T) {
	violations := ValidateChain(nil, digest.SHA256)
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationEmptyChain, violations[0].Kind)
}
