package checkpoint

import (
	"bytes"
	"fmt"
	"math/big"

	"sectf/crypto"
	"sectf/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint is a game state at some turn together with the off-chain
// signatures collected over its hash. Signatures has one slot per player; a
// nil slot is a signature not yet received.
type Checkpoint struct {
	Data       domain.GameState
	Hash       common.Hash
	Signatures [][]byte
	OnChain    bool
}

// New hashes state and returns an unsigned checkpoint for players players.
func New(roomID *big.Int, state domain.GameState, players int, onChain bool) (Checkpoint, error) {
	hash, err := HashState(roomID, state)
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{
		Data:       state,
		Hash:       hash,
		Signatures: make([][]byte, players),
		OnChain:    onChain,
	}, nil
}

func (c Checkpoint) Turn() uint16 { return c.Data.Turn }

func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.Data = c.Data.Clone()
	out.Signatures = make([][]byte, len(c.Signatures))
	for i, sig := range c.Signatures {
		if sig != nil {
			out.Signatures[i] = bytes.Clone(sig)
		}
	}
	return out
}

// VerifyHash recomputes the hash of Data and compares it with Hash.
func (c Checkpoint) VerifyHash(roomID *big.Int) error {
	hash, err := HashState(roomID, c.Data)
	if err != nil {
		return err
	}
	if hash != c.Hash {
		return fmt.Errorf("%w: turn %d", ErrHashMismatch, c.Data.Turn)
	}
	return nil
}

// Sign fills slot index with key's signature over the hash.
func (c *Checkpoint) Sign(index int, key *crypto.OffchainKey) error {
	if index < 0 || index >= len(c.Signatures) {
		return fmt.Errorf("%w: slot %d", ErrInvalidSignature, index)
	}
	sig, err := key.Sign(c.Hash.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	c.Signatures[index] = sig
	return nil
}

// ValidSigners returns the indices holding a signature. Every present
// signature must recover to keys[i]; a single bad one fails the whole
// checkpoint.
func (c Checkpoint) ValidSigners(keys []common.Address) ([]int, error) {
	if len(c.Signatures) != len(keys) {
		return nil, fmt.Errorf("%w: %d slots for %d players", ErrInvalidSignature, len(c.Signatures), len(keys))
	}
	signers := make([]int, 0, len(keys))
	for i, sig := range c.Signatures {
		if sig == nil {
			continue
		}
		if !crypto.Verify(c.Hash.Bytes(), sig, keys[i]) {
			return nil, fmt.Errorf("%w: slot %d", ErrInvalidSignature, i)
		}
		signers = append(signers, i)
	}
	return signers, nil
}

func (c Checkpoint) SignatureCount() int {
	n := 0
	for _, sig := range c.Signatures {
		if sig != nil {
			n++
		}
	}
	return n
}

func (c Checkpoint) FullySigned() bool {
	return len(c.Signatures) > 0 && c.SignatureCount() == len(c.Signatures)
}

// MergeSignatures copies into c the signatures other holds and c lacks. Both
// must be over the same hash. It reports how many slots were filled.
func (c *Checkpoint) MergeSignatures(other Checkpoint) (int, error) {
	if other.Hash != c.Hash {
		return 0, fmt.Errorf("%w: merging %s into %s", ErrHashMismatch, other.Hash, c.Hash)
	}
	if len(other.Signatures) != len(c.Signatures) {
		return 0, fmt.Errorf("%w: %d slots for %d", ErrInvalidSignature, len(other.Signatures), len(c.Signatures))
	}
	added := 0
	for i, sig := range other.Signatures {
		if sig != nil && c.Signatures[i] == nil {
			c.Signatures[i] = bytes.Clone(sig)
			added++
		}
	}
	return added, nil
}
