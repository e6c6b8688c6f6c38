package orchestrator

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/learnledger/backend/internal/chain"
	"github.com/learnledger/backend/internal/wallet"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")

// ledgerStub is a scriptable JSON-RPC endpoint. It answers nonce and gas
// price queries, records every raw transaction it receives, and lets tests
// inject per-attempt send behavior.
type ledgerStub struct {
	t *testing.T

	mu           sync.Mutex
	sendAttempts int
	sentRaw      []string
	// onSend decides the response for the nth send attempt (1-based).
	onSend        func(attempt int) (accept bool, rpcErr map[string]interface{})
	receiptStatus string
	breakConn     bool
}

func newLedgerStub(t *testing.T) (*ledgerStub, *chain.Client) {
	t.Helper()
	stub := &ledgerStub{t: t, receiptStatus: "0x1"}

	server := httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(server.Close)

	client, err := chain.NewClient(chain.Config{RPCURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return stub, client
}

func (s *ledgerStub) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     int               `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	write := func(result interface{}, rpcErr map[string]interface{}) {
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}

	switch req.Method {
	case "eth_getTransactionCount":
		write("0x0", nil)
	case "eth_gasPrice":
		write("0x3b9aca00", nil)
	case "eth_sendRawTransaction":
		s.sendAttempts++
		if s.breakConn {
			s.breakConn = false
			// Malformed body forces a transport-class failure client side.
			w.Write([]byte("not json"))
			return
		}
		if s.onSend != nil {
			accept, rpcErr := s.onSend(s.sendAttempts)
			if !accept {
				write(nil, rpcErr)
				return
			}
		}
		var raw string
		json.Unmarshal(req.Params[0], &raw)
		s.sentRaw = append(s.sentRaw, raw)
		write(hashOf(s.t, raw), nil)
	case "eth_getTransactionReceipt":
		write(map[string]string{
			"transactionHash": "0xabc",
			"blockNumber":     "0x10",
			"gasUsed":         "0x5208",
			"status":          s.receiptStatus,
		}, nil)
	default:
		write(nil, map[string]interface{}{"code": -32601, "message": "method not found"})
	}
}

func hashOf(t *testing.T, raw string) string {
	t.Helper()
	data, err := hexutil.Decode(raw)
	if err != nil {
		t.Fatalf("decode raw tx: %v", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal raw tx: %v", err)
	}
	return tx.Hash().Hex()
}

func nonceOf(t *testing.T, raw string) uint64 {
	t.Helper()
	data, err := hexutil.Decode(raw)
	if err != nil {
		t.Fatalf("decode raw tx: %v", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal raw tx: %v", err)
	}
	return tx.Nonce()
}

func newTestOrchestrator(t *testing.T, client *chain.Client) *Orchestrator {
	t.Helper()
	signer, err := wallet.NewSigningIdentity(testKey)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	orch, err := New(Config{
		Client:         client,
		Signer:         signer,
		ChainID:        big.NewInt(84532),
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		ReceiptPoll:    time.Millisecond,
		ReceiptTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	orch.Start()
	t.Cleanup(orch.Stop)
	return orch
}

func submitOp(t *testing.T, orch *Orchestrator, kind OpKind) *Pending {
	t.Helper()
	pending, err := orch.Submit(context.Background(), Operation{
		Kind: kind,
		To:   testContract,
		Data: []byte{0x01, 0x02, 0x03, 0x04},
	})
	if err != nil {
		t.Fatalf("submit %s: %v", kind, err)
	}
	return pending
}

func TestOperationsExecuteInSubmissionOrder(t *testing.T) {
	stub, client := newLedgerStub(t)
	orch := newTestOrchestrator(t, client)

	pendings := []*Pending{
		submitOp(t, orch, OpRegister),
		submitOp(t, orch, OpCreateCourse),
		submitOp(t, orch, OpPurchase),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, pending := range pendings {
		if _, err := pending.Await(ctx); err != nil {
			t.Fatalf("operation %d failed: %v", i, err)
		}
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.sentRaw) != 3 {
		t.Fatalf("sent %d transactions, want 3", len(stub.sentRaw))
	}
	for i, raw := range stub.sentRaw {
		if got := nonceOf(t, raw); got != uint64(i) {
			t.Fatalf("transaction %d has nonce %d, want %d", i, got, i)
		}
	}
}

func TestTransientFailureRetriesSameTransaction(t *testing.T) {
	stub, client := newLedgerStub(t)
	stub.breakConn = true
	orch := newTestOrchestrator(t, client)

	pending := submitOp(t, orch, OpPurchase)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := pending.Await(ctx)
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.sendAttempts != 2 {
		t.Fatalf("send attempts = %d, want 2", stub.sendAttempts)
	}
	if len(stub.sentRaw) != 1 {
		t.Fatalf("accepted transactions = %d, want 1", len(stub.sentRaw))
	}
	if result.TxHash != hashOf(t, stub.sentRaw[0]) {
		t.Fatal("result hash does not match the accepted transaction")
	}
}

func TestRevertedSubmissionIsNeverRetried(t *testing.T) {
	stub, client := newLedgerStub(t)
	stub.onSend = func(int) (bool, map[string]interface{}) {
		return false, map[string]interface{}{"code": 3, "message": "execution reverted: Not registered"}
	}
	orch := newTestOrchestrator(t, client)

	pending := submitOp(t, orch, OpBuyShares)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := pending.Await(ctx)
	if err == nil {
		t.Fatal("expected failure")
	}
	chainErr := chain.AsError(err)
	if chainErr == nil || chainErr.Kind != chain.KindReverted {
		t.Fatalf("expected reverted classification, got %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.sendAttempts != 1 {
		t.Fatalf("send attempts = %d, want exactly 1", stub.sendAttempts)
	}
}

func TestAlreadyKnownOnRetryCountsAsAccepted(t *testing.T) {
	stub, client := newLedgerStub(t)
	stub.breakConn = true
	stub.onSend = func(attempt int) (bool, map[string]interface{}) {
		// The first attempt died mid-connection after the node accepted the
		// transaction; the resend is rejected as a duplicate.
		return false, map[string]interface{}{"code": -32000, "message": "already known"}
	}
	orch := newTestOrchestrator(t, client)

	pending := submitOp(t, orch, OpDistributeProfits)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := pending.Await(ctx)
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}
	if result.TxHash == "" {
		t.Fatal("expected the locally computed transaction hash")
	}
}

func TestRevertedReceiptFailsOperation(t *testing.T) {
	stub, client := newLedgerStub(t)
	stub.receiptStatus = "0x0"
	orch := newTestOrchestrator(t, client)

	pending := submitOp(t, orch, OpWithdrawProfits)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := pending.Await(ctx)
	chainErr := chain.AsError(err)
	if chainErr == nil || chainErr.Kind != chain.KindReverted {
		t.Fatalf("expected reverted classification, got %v", err)
	}
}

func TestAwaitHonorsCallerContext(t *testing.T) {
	pending := &Pending{kind: OpRegister, done: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pending.Await(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	_, client := newLedgerStub(t)
	orch := newTestOrchestrator(t, client)
	orch.Stop()

	if _, err := orch.Submit(context.Background(), Operation{
		Kind: OpRegister,
		To:   testContract,
		Data: []byte{0x01},
	}); err == nil {
		t.Fatal("expected error after stop")
	}
}

func TestNewSettledPending(t *testing.T) {
	want := &Result{TxHash: "0xabc", GasUsed: 21000}
	pending := NewSettledPending(OpPurchase, want, nil)

	got, err := pending.Await(context.Background())
	if err != nil || got != want {
		t.Fatalf("Await = %v, %v", got, err)
	}
	if pending.Kind() != OpPurchase {
		t.Fatalf("kind = %s", pending.Kind())
	}
}
