// Package chain adapts the loan engine to its external ledger: a
// lending contract on an EVM chain reached over JSON-RPC. The gateway
// builds, signs and broadcasts contract calls with the service custody
// key; it never raises settlement failures as Go errors, folding them
// into domain.SettlementResult instead.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/gramfinance/gramfin-go/internal/config"
	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/resilience"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("chain")

// lendingABI covers the two mutating entry points of the lending
// contract, both nonpayable.
const lendingABI = `[
  {"inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"}],
   "name":"disburseLoan","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"}],
   "name":"repayLoan","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const receiptPollInterval = 2 * time.Second

// nodeClient is the slice of the Ethereum RPC surface the gateway needs.
// *ethclient.Client satisfies it; tests substitute a fake.
type nodeClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Gateway implements port.Settler against the lending contract.
// A gateway constructed without a contract address or custody key is
// fail-closed: every settlement returns success=false with the
// configuration error, and nothing panics.
type Gateway struct {
	client        nodeClient
	key           *ecdsa.PrivateKey
	from          common.Address
	contract      common.Address
	abi           abi.ABI
	gasLimit      uint64
	gasPrice      *big.Int
	unitsPerRupee int64
	policy        config.ConfirmPolicy
	retry         resilience.Config
	breaker       *gobreaker.CircuitBreaker
	bulkhead      *resilience.Bulkhead
	logger        *zap.Logger

	disabledReason string // non-empty ⇒ fail closed
}

// NewGateway wires the gateway from configuration. Missing contract
// address or key, or an unreachable RPC URL, produce a disabled (fail-
// closed) gateway rather than an error: the rest of the service keeps
// serving savings and eligibility while settlement reports failures.
func NewGateway(cfg *config.Config, retry resilience.Config, logger *zap.Logger) *Gateway {
	g := &Gateway{
		gasLimit:      cfg.GasLimit,
		gasPrice:      new(big.Int).Mul(big.NewInt(cfg.GasPriceGwei), big.NewInt(1e9)),
		unitsPerRupee: cfg.UnitsPerRupee,
		policy:        cfg.SettlePolicy,
		retry:         retry,
		breaker:       resilience.NewCircuitBreaker("chain-rpc"),
		bulkhead:      resilience.NewBulkhead(cfg.MaxConcurrency),
		logger:        logger,
	}

	parsed, err := abi.JSON(strings.NewReader(lendingABI))
	if err != nil {
		// The ABI is a compile-time constant; this cannot happen in a
		// released build.
		panic("lending ABI invalid: " + err.Error())
	}
	g.abi = parsed

	if cfg.ContractAddress == "" {
		g.disabledReason = "contract address not configured"
		logger.Warn("settlement gateway disabled", zap.String("reason", g.disabledReason))
		return g
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		g.disabledReason = "contract address is not a valid hex address"
		logger.Warn("settlement gateway disabled", zap.String("reason", g.disabledReason))
		return g
	}
	g.contract = common.HexToAddress(cfg.ContractAddress)

	if cfg.ChainPrivateKey == "" {
		g.disabledReason = "custody key not configured"
		logger.Warn("settlement gateway disabled", zap.String("reason", g.disabledReason))
		return g
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(cfg.ChainPrivateKey, "0x"))
	if err != nil {
		g.disabledReason = "custody key invalid: " + err.Error()
		logger.Warn("settlement gateway disabled", zap.String("reason", g.disabledReason))
		return g
	}
	g.key = key
	g.from = gethcrypto.PubkeyToAddress(key.PublicKey)

	client, err := ethclient.Dial(cfg.ChainRPCURL)
	if err != nil {
		g.disabledReason = "rpc dial failed: " + err.Error()
		logger.Warn("settlement gateway disabled", zap.String("reason", g.disabledReason))
		return g
	}
	g.client = client

	logger.Info("settlement gateway ready",
		zap.String("contract", g.contract.Hex()),
		zap.String("signer", g.from.Hex()),
		zap.String("confirm_policy", string(g.policy)),
	)
	return g
}

// Disburse submits a disburseLoan contract call for the user's address.
func (g *Gateway) Disburse(ctx context.Context, intent *domain.SettlementIntent) domain.SettlementResult {
	return g.submit(ctx, "disburseLoan", intent)
}

// CollectRepayment submits a repayLoan contract call.
func (g *Gateway) CollectRepayment(ctx context.Context, intent *domain.SettlementIntent) domain.SettlementResult {
	return g.submit(ctx, "repayLoan", intent)
}

// submit runs one settlement attempt end to end: resolve the signed
// payload for the intent, then broadcast it (with retry of the identical
// payload, which the node deduplicates by hash).
func (g *Gateway) submit(ctx context.Context, method string, intent *domain.SettlementIntent) domain.SettlementResult {
	ctx, span := tracer.Start(ctx, "Gateway."+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("settlement.ref", intent.ID),
		attribute.String("settlement.amount", intent.Amount.String()),
	)

	if g.disabledReason != "" {
		return domain.SettlementResult{Success: false, Err: g.disabledReason}
	}
	if !common.IsHexAddress(intent.Address) {
		return domain.SettlementResult{Success: false, Err: "invalid wallet address: " + intent.Address}
	}

	if err := g.bulkhead.Acquire(ctx); err != nil {
		return failure(err)
	}
	defer g.bulkhead.Release()

	tx, err := g.payload(ctx, method, intent)
	if err != nil {
		g.logger.Error("settlement build failed",
			zap.String("ref", intent.ID), zap.String("method", method), zap.Error(err))
		return failure(err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return failure(fmt.Errorf("encode transaction: %w", err))
	}
	rawHex := hexutil.Encode(raw)
	hash := tx.Hash()

	// Rebroadcasting the same signed transaction is safe: the node keys
	// it by hash, so neither the retry loop nor an intent replay can
	// double-spend while the payload is pinned.
	err = resilience.RetryWithBackoff(ctx, g.retry, func() error {
		_, berr := g.breaker.Execute(func() (any, error) {
			return nil, g.client.SendTransaction(ctx, tx)
		})
		if berr != nil && strings.Contains(berr.Error(), "already known") {
			return nil
		}
		return berr
	})
	if err != nil {
		g.logger.Error("settlement broadcast failed",
			zap.String("ref", intent.ID), zap.String("method", method), zap.Error(err))
		res := failure(err)
		res.TxHash = hash.Hex()
		res.SignedTx = rawHex
		return res
	}

	if g.policy == config.ConfirmMined {
		if res := g.waitMined(ctx, hash); !res.Success {
			res.SignedTx = rawHex
			return res
		}
	}

	g.logger.Info("settlement broadcast accepted",
		zap.String("ref", intent.ID),
		zap.String("method", method),
		zap.String("tx_hash", hash.Hex()),
	)
	return domain.SettlementResult{Success: true, TxHash: hash.Hex()}
}

// payload returns the transaction to broadcast for the intent: the
// payload pinned on a previous attempt when one exists, else a freshly
// built and signed one. A replayed intent must never be re-signed, since
// a fresh nonce would turn the replay into a second transfer.
func (g *Gateway) payload(ctx context.Context, method string, intent *domain.SettlementIntent) (*types.Transaction, error) {
	if intent.SignedTx == "" {
		return g.buildSigned(ctx, method, common.HexToAddress(intent.Address), intent.Amount)
	}
	raw, err := hexutil.Decode(intent.SignedTx)
	if err != nil {
		return nil, fmt.Errorf("decode pinned payload: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal pinned payload: %w", err)
	}
	return tx, nil
}

func (g *Gateway) buildSigned(ctx context.Context, method string, user common.Address, amount decimal.Decimal) (*types.Transaction, error) {
	chainID, err := g.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := g.client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	data, err := g.abi.Pack(method, user, chainUnits(amount, g.unitsPerRupee))
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	tx := types.NewTransaction(nonce, g.contract, big.NewInt(0), g.gasLimit, g.gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return signed, nil
}

// waitMined polls for the receipt under the caller's deadline. Only used
// under the mined confirmation policy.
func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) domain.SettlementResult {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return domain.SettlementResult{Success: true, TxHash: hash.Hex()}
			}
			return domain.SettlementResult{
				Success: false,
				TxHash:  hash.Hex(),
				Err:     "transaction reverted on-chain",
			}
		}

		select {
		case <-ctx.Done():
			// Broadcast happened; only confirmation is unknown. Intent
			// replay will find the loan still pending and re-resolve.
			return domain.SettlementResult{
				Success:   false,
				TxHash:    hash.Hex(),
				Err:       "confirmation not observed before deadline",
				Retryable: true,
			}
		case <-ticker.C:
		}
	}
}

// chainUnits converts a rupee amount to the chain's smallest native unit
// (wei): amount / unitsPerRupee tokens, scaled by 1e18. The divisor is a
// documented configuration placeholder, not an exchange rate.
func chainUnits(amount decimal.Decimal, unitsPerRupee int64) *big.Int {
	return amount.Shift(18).Div(decimal.NewFromInt(unitsPerRupee)).Truncate(0).BigInt()
}

// failure folds an error into a settlement result, marking as retryable
// the classes where funds provably did not move.
func failure(err error) domain.SettlementResult {
	return domain.SettlementResult{
		Success:   false,
		Err:       err.Error(),
		Retryable: isRetryable(err),
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout")
}
