package chain

import (
	"context"
	"encoding/hex"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is a freshly generated chain account for a new user. The private
// key is returned exactly once, at creation time; the service stores only
// the address.
type Wallet struct {
	Address       string
	PrivateKeyHex string
}

// CreateWallet generates a new secp256k1 keypair for user onboarding.
func CreateWallet() (Wallet, error) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{
		Address:       gethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKeyHex: hex.EncodeToString(gethcrypto.FromECDSA(key)),
	}, nil
}

// Balance reports the native-token balance of an address in whole tokens.
// Lookup failures (bad address, unreachable node, disabled gateway) read
// as zero so chat replies degrade instead of erroring.
func (g *Gateway) Balance(ctx context.Context, address string) float64 {
	if g.disabledReason != "" || !common.IsHexAddress(address) {
		return 0
	}
	wei, err := g.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		g.logger.Warn("balance lookup failed")
		return 0
	}
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return ether
}
