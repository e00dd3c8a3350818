package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/gramfinance/gramfin-go/internal/config"
	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/resilience"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const borrowerAddr = "0x8ba1f109551bD432803012645Ac136ddd64DBa72"

// --- fake node ---

type fakeNode struct {
	sendErr    error
	receipt    *types.Receipt
	receiptErr error
	balance    *big.Int

	sent       []*types.Transaction
	nonceCalls int
}

func (f *fakeNode) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(80002), nil
}

// PendingNonceAt advances on every call, the way a pool that accepted
// earlier transactions would.
func (f *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	n := uint64(7 + f.nonceCalls)
	f.nonceCalls++
	return n, nil
}

func (f *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func (f *fakeNode) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balance == nil {
		return nil, errors.New("node unavailable")
	}
	return f.balance, nil
}

// --- helpers ---

func newTestGateway(t *testing.T, node nodeClient, policy config.ConfirmPolicy) *Gateway {
	t.Helper()

	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	parsed, err := abi.JSON(strings.NewReader(lendingABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return &Gateway{
		client:        node,
		key:           key,
		from:          gethcrypto.PubkeyToAddress(key.PublicKey),
		contract:      common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		abi:           parsed,
		gasLimit:      100000,
		gasPrice:      big.NewInt(20e9),
		unitsPerRupee: 1000,
		policy:        policy,
		retry:         resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond},
		breaker:       resilience.NewCircuitBreaker("test"),
		bulkhead:      resilience.NewBulkhead(2),
		logger:        zap.NewNop(),
	}
}

func testIntent(addr string, amount decimal.Decimal) *domain.SettlementIntent {
	return &domain.SettlementIntent{ID: "loan-1", Address: addr, Amount: amount}
}

// --- tests ---

func TestDisburse_BroadcastSuccess(t *testing.T) {
	node := &fakeNode{}
	g := newTestGateway(t, node, config.ConfirmBroadcast)

	res := g.Disburse(context.Background(), testIntent(borrowerAddr, decimal.NewFromInt(2000)))

	if !res.Success {
		t.Fatalf("expected success, got err=%q", res.Err)
	}
	if res.TxHash == "" {
		t.Error("expected a transaction hash")
	}
	if len(node.sent) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(node.sent))
	}

	tx := node.sent[0]
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.Gas() != 100000 {
		t.Errorf("gas limit = %d, want 100000", tx.Gas())
	}

	method := g.abi.Methods["disburseLoan"]
	data := tx.Data()
	if len(data) < 4 || string(data[:4]) != string(method.ID) {
		t.Fatal("calldata does not target disburseLoan")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack calldata: %v", err)
	}
	if got := args[0].(common.Address); got != common.HexToAddress(borrowerAddr) {
		t.Errorf("recipient = %s, want %s", got.Hex(), borrowerAddr)
	}
	// 2000 rupees at 1000 units per rupee is 2 tokens, i.e. 2e18 wei.
	want := new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
	if got := args[1].(*big.Int); got.Cmp(want) != 0 {
		t.Errorf("amount = %s wei, want %s", got, want)
	}
}

func TestCollectRepayment_UsesRepayMethod(t *testing.T) {
	node := &fakeNode{}
	g := newTestGateway(t, node, config.ConfirmBroadcast)

	res := g.CollectRepayment(context.Background(), testIntent(borrowerAddr, decimal.NewFromFloat(2060)))

	if !res.Success {
		t.Fatalf("expected success, got err=%q", res.Err)
	}
	method := g.abi.Methods["repayLoan"]
	if data := node.sent[0].Data(); string(data[:4]) != string(method.ID) {
		t.Error("calldata does not target repayLoan")
	}
}

func TestSubmit_DisabledGatewayFailsClosed(t *testing.T) {
	cfg := config.Load()
	cfg.ContractAddress = ""
	g := NewGateway(cfg, resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}, zap.NewNop())

	res := g.Disburse(context.Background(), testIntent(borrowerAddr, decimal.NewFromInt(1000)))

	if res.Success {
		t.Fatal("disabled gateway must not report success")
	}
	if res.Retryable {
		t.Error("missing configuration is not a retryable condition")
	}
	if res.Err == "" {
		t.Error("expected a configuration error message")
	}
}

func TestSubmit_InvalidAddressRejected(t *testing.T) {
	node := &fakeNode{}
	g := newTestGateway(t, node, config.ConfirmBroadcast)

	res := g.Disburse(context.Background(), testIntent("not-an-address", decimal.NewFromInt(1000)))

	if res.Success || res.Retryable {
		t.Fatalf("expected terminal failure, got %+v", res)
	}
	if len(node.sent) != 0 {
		t.Error("nothing should reach the node for a bad address")
	}
}

func TestSubmit_RevertIsTerminal(t *testing.T) {
	node := &fakeNode{sendErr: errors.New("execution reverted: loan cap exceeded")}
	g := newTestGateway(t, node, config.ConfirmBroadcast)

	res := g.Disburse(context.Background(), testIntent(borrowerAddr, decimal.NewFromInt(1000)))

	if res.Success {
		t.Fatal("reverted broadcast must fail")
	}
	if res.Retryable {
		t.Error("a contract revert must not be marked retryable")
	}
}

func TestSubmit_TimeoutIsRetryable(t *testing.T) {
	node := &fakeNode{sendErr: context.DeadlineExceeded}
	g := newTestGateway(t, node, config.ConfirmBroadcast)

	res := g.Disburse(context.Background(), testIntent(borrowerAddr, decimal.NewFromInt(1000)))

	if res.Success {
		t.Fatal("timed-out broadcast must fail")
	}
	if !res.Retryable {
		t.Error("a node timeout must be marked retryable")
	}
}

func TestDisburse_ReplayRebroadcastsSamePayload(t *testing.T) {
	node := &fakeNode{sendErr: context.DeadlineExceeded}
	g := newTestGateway(t, node, config.ConfirmBroadcast)

	intent := testIntent(borrowerAddr, decimal.NewFromInt(2000))
	first := g.Disburse(context.Background(), intent)
	if first.Success {
		t.Fatal("timed-out broadcast must fail")
	}
	if !first.Retryable {
		t.Fatal("a node timeout must be marked retryable")
	}
	if first.SignedTx == "" {
		t.Fatal("a retryable failure must carry the signed payload for pinning")
	}

	// The service pins the payload on the intent; a replay hands it back.
	intent.SignedTx = first.SignedTx
	node.sendErr = nil
	second := g.Disburse(context.Background(), intent)
	if !second.Success {
		t.Fatalf("replay failed: %s", second.Err)
	}
	if second.TxHash != first.TxHash {
		t.Errorf("replay hash = %s, first attempt hash = %s", second.TxHash, first.TxHash)
	}

	hashes := map[common.Hash]struct{}{}
	for _, tx := range node.sent {
		hashes[tx.Hash()] = struct{}{}
		if tx.Nonce() != 7 {
			t.Errorf("broadcast used nonce %d, want 7 on every attempt", tx.Nonce())
		}
	}
	if len(hashes) != 1 {
		t.Fatalf("one intent produced %d distinct transactions, want 1", len(hashes))
	}
	if node.nonceCalls != 1 {
		t.Errorf("nonce fetched %d times, want 1: a replay must not re-sign", node.nonceCalls)
	}
}

func TestWaitMined_RevertedReceipt(t *testing.T) {
	node := &fakeNode{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	g := newTestGateway(t, node, config.ConfirmMined)

	res := g.Disburse(context.Background(), testIntent(borrowerAddr, decimal.NewFromInt(1000)))

	if res.Success {
		t.Fatal("a reverted receipt must fail the settlement")
	}
	if res.Retryable {
		t.Error("an on-chain revert must not be marked retryable")
	}
	if res.TxHash == "" {
		t.Error("the hash of the reverted transaction should be reported")
	}
}

func TestWaitMined_PendingPastDeadlineIsRetryable(t *testing.T) {
	node := &fakeNode{receiptErr: errors.New("not found")}
	g := newTestGateway(t, node, config.ConfirmMined)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := g.Disburse(ctx, testIntent(borrowerAddr, decimal.NewFromInt(1000)))

	if res.Success {
		t.Fatal("unconfirmed settlement must not report success")
	}
	if !res.Retryable {
		t.Error("an unobserved confirmation must be retryable")
	}
}

func TestChainUnits(t *testing.T) {
	cases := []struct {
		rupees string
		units  int64
		want   string
	}{
		{"2000", 1000, "2000000000000000000"},
		{"500", 1000, "500000000000000000"},
		{"343.33", 1000, "343330000000000000"},
		{"1", 1, "1000000000000000000"},
	}
	for _, tc := range cases {
		got := chainUnits(decimal.RequireFromString(tc.rupees), tc.units)
		if got.String() != tc.want {
			t.Errorf("chainUnits(%s, %d) = %s, want %s", tc.rupees, tc.units, got, tc.want)
		}
	}
}

func TestBalance_DegradesToZero(t *testing.T) {
	node := &fakeNode{balance: big.NewInt(1.5e18)}
	g := newTestGateway(t, node, config.ConfirmBroadcast)

	if got := g.Balance(context.Background(), borrowerAddr); got != 1.5 {
		t.Errorf("balance = %v, want 1.5", got)
	}
	if got := g.Balance(context.Background(), "garbage"); got != 0 {
		t.Errorf("bad address balance = %v, want 0", got)
	}

	node.balance = nil
	if got := g.Balance(context.Background(), borrowerAddr); got != 0 {
		t.Errorf("unavailable node balance = %v, want 0", got)
	}
}
