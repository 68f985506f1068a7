package ledger

import (
	"errors"
	"fmt"
	"strings"

	"voting-audit/digest"
	"voting-audit/models"
)

var (
	ErrIntegrityViolation = errors.New("audit chain integrity violation")
	ErrBlockNotFound      = errors.New("block not found")
)

type ViolationKind string

const (
	ViolationEmptyChain     ViolationKind = "empty_chain"
	ViolationGenesisLink    ViolationKind = "genesis_link"
	ViolationHashMismatch   ViolationKind = "hash_mismatch"
	ViolationBrokenLink     ViolationKind = "broken_link"
	ViolationIndexMismatch  ViolationKind = "index_mismatch"
	ViolationTimeRegression ViolationKind = "time_regression"
)

type Violation struct {
	Index    uint64        `json:"block_index"`
	Kind     ViolationKind `json:"error"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
}

func (v Violation) String() string {
	if v.Expected == "" && v.Actual == "" {
		return fmt.Sprintf("block %d: %s", v.Index, v.Kind)
	}
	return fmt.Sprintf("block %d: %s (expected %s, got %s)", v.Index, v.Kind, v.Expected, v.Actual)
}

// ValidationError lists every violation found in one chain walk.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%v: %s", ErrIntegrityViolation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrIntegrityViolation
}

// ValidateChain checks a chain against its invariants and returns every
// violation in block order. An intact chain yields none.
func ValidateChain(chain []models.Block, h digest.Hasher) []Violation {
	var violations []Violation
	walk(chain, h, func(v Violation) bool {
		violations = append(violations, v)
		return true
	})
	return violations
}

func firstViolation(chain []models.Block, h digest.Hasher) (Violation, bool) {
	var (
		first Violation
		found bool
	)
	walk(chain, h, func(v Violation) bool {
		first, found = v, true
		return false
	})
	return first, found
}

// walk reports violations to emit until it returns false.
func walk(chain []models.Block, h digest.Hasher, emit func(Violation) bool) {
	if len(chain) == 0 {
		emit(Violation{Kind: ViolationEmptyChain})
		return
	}

	for i, block := range chain {
		position := uint64(i)

		// Verify block hash
		if calculated := block.RecomputeHash(h); calculated != block.Hash {
			if !emit(Violation{
				Index:    position,
				Kind:     ViolationHashMismatch,
				Expected: block.Hash.Hex(),
				Actual:   calculated.Hex(),
			}) {
				return
			}
		}

		// Verify block links correctly to previous block
		expectedPrev := models.GenesisPrevHash
		kind := ViolationGenesisLink
		if i > 0 {
			expectedPrev = chain[i-1].Hash
			kind = ViolationBrokenLink
		}
		if block.PrevHash != expectedPrev {
			if !emit(Violation{
				Index:    position,
				Kind:     kind,
				Expected: expectedPrev.Hex(),
				Actual:   block.PrevHash.Hex(),
			}) {
				return
			}
		}

		// Verify block index
		if block.Index != position {
			if !emit(Violation{
				Index:    position,
				Kind:     ViolationIndexMismatch,
				Expected: fmt.Sprint(position),
				Actual:   fmt.Sprint(block.Index),
			}) {
				return
			}
		}

		if i > 0 && block.Timestamp < chain[i-1].Timestamp {
			if !emit(Violation{
				Index:    position,
				Kind:     ViolationTimeRegression,
				Expected: fmt.Sprintf(">= %d", chain[i-1].Timestamp),
				Actual:   fmt.Sprint(block.Timestamp),
			}) {
				return
			}
		}
	}
}
