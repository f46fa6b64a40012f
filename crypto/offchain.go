package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMalformedSignature = errors.New("malformed-signature")
	ErrMalformedKey       = errors.New("malformed-offchain-key")
)

const recoveryID = ethcrypto.RecoveryIDOffset

// OffchainKey is the per-room key a player signs checkpoints and handshakes
// with. Its address is registered on chain when the player joins.
type OffchainKey struct {
	key *ecdsa.PrivateKey
}

func GenerateOffchainKey() (*OffchainKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	return &OffchainKey{key: key}, nil
}

// OffchainKeyFromHex parses a 0x-prefixed or bare hex private key.
func OffchainKeyFromHex(s string) (*OffchainKey, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	key, err := ethcrypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	return &OffchainKey{key: key}, nil
}

func (k *OffchainKey) Hex() string {
	return hexutil.Encode(ethcrypto.FromECDSA(k.key))
}

func (k *OffchainKey) PublicKeyHex() string {
	return hexutil.Encode(ethcrypto.FromECDSAPub(&k.key.PublicKey))
}

func (k *OffchainKey) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.key.PublicKey)
}

// Sign produces a 65-byte personal_sign signature over digest, with V in
// {27, 28}.
func (k *OffchainKey) Sign(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(digest), k.key)
	if err != nil {
		return nil, err
	}
	sig[recoveryID] += 27
	return sig, nil
}


// RecoverSigner returns the address that produced sig over digest.
func RecoverSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[recoveryID] >= 27 {
		normalized[recoveryID] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(digest), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over digest was produced by signer.
func Verify(digest, sig []byte, signer common.Address) bool {
	got, err := RecoverSigner(digest, sig)
	return err == nil && got == signer
}

// HandshakeDigest is keccak256(address ‖ uint256(timestamp)), the value a
// peer signs to prove it controls a player's off-chain key.
func HandshakeDigest(addr common.Address, timestampMs int64) []byte {
	ts := common.BigToHash(big.NewInt(timestampMs))
	return ethcrypto.Keccak256(addr.Bytes(), ts.Bytes())
}

// StoreKey scopes a local record to one player in one room of one contract.
func StoreKey(contract, player common.Address, roomID *big.Int) common.Hash {
	return ethcrypto.Keccak256Hash(contract.Bytes(), player.Bytes(), common.BigToHash(roomID).Bytes())
}
