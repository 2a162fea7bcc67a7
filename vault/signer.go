// ABOUTME: Signer capability bound to one chain's network parameters.
// ABOUTME: Can sign transactions and digests; never yields the raw scalar.
package vault

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ChainParams are the network parameters for one EVM-compatible chain,
// supplied by the injected registry.
type ChainParams struct {
	ChainKey string
	ChainID  *big.Int
	RPCURL   string
	Decimals int
}

// ChainRegistry resolves a chain key to its parameters. The vault treats it
// as an opaque read-only configuration source; it has no compiled-in chain
// list of its own.
type ChainRegistry interface {
	Lookup(chainKey string) (ChainParams, error)
}

// Signer signs for a single address on a single chain. The private scalar
// stays inside; there is no accessor that returns it, and Close wipes it.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	params  ChainParams
}

func newSigner(key *ecdsa.PrivateKey, address common.Address, params ChainParams) *Signer {
	return &Signer{key: key, address: address, params: params}
}

// Address returns the EIP-55 checksummed signing address.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns the bound chain's id.
func (s *Signer) ChainID() *big.Int { return s.params.ChainID }

// RPCURL returns the bound chain's RPC endpoint.
func (s *Signer) RPCURL() string { return s.params.RPCURL }

// SignTx signs tx for the bound chain id.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	if s.key == nil {
		return nil, errors.New("signer closed")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(s.params.ChainID), s.key)
}

// SignHash signs a 32-byte digest, returning the 65-byte [R||S||V] signature.
func (s *Signer) SignHash(digest []byte) ([]byte, error) {
	if s.key == nil {
		return nil, errors.New("signer closed")
	}
	if len(digest) != 32 {
		return nil, errors.New("digest must be 32 bytes")
	}
	return crypto.Sign(digest, s.key)
}

// Close zeroes the private scalar. The signer is unusable afterwards.
func (s *Signer) Close() {
	zeroPrivateKey(s.key)
	s.key = nil
}
