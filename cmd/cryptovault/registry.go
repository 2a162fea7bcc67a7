package main

import (
	"fmt"
	"math/big"

	"github.com/btcdanaindiaoff-arch/CryptoVault-Wallet/vault"
)

// chainRegistry is the CLI's chain catalog. The vault core has no
// compiled-in chain list; this is the injected read-only collaborator.
type chainRegistry map[string]vault.ChainParams

func (r chainRegistry) Lookup(chainKey string) (vault.ChainParams, error) {
	params, ok := r[chainKey]
	if !ok {
		return vault.ChainParams{}, fmt.Errorf("unknown chain %q", chainKey)
	}
	return params, nil
}

func defaultRegistry() chainRegistry {
	return chainRegistry{
		"ethereum": {ChainKey: "ethereum", ChainID: big.NewInt(1), RPCURL: "https://eth.llamarpc.com", Decimals: 18},
		"bsc":      {ChainKey: "bsc", ChainID: big.NewInt(56), RPCURL: "https://bsc-dataseed.binance.org", Decimals: 18},
		"polygon":  {ChainKey: "polygon", ChainID: big.NewInt(137), RPCURL: "https://polygon-rpc.com", Decimals: 18},
	}
}
