// Package orchestrator serializes every ledger write through the single
// backend signing identity. One consumer goroutine owns the nonce sequence,
// so concurrent API requests can never race it: operations are assigned a
// queue position at submission time and executed strictly in that order.
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/learnledger/backend/internal/chain"
	"github.com/learnledger/backend/internal/logging"
	"github.com/learnledger/backend/internal/metrics"
	"github.com/learnledger/backend/internal/wallet"
)

// OpKind names a ledger write for logging and metrics.
type OpKind string

const (
	OpRegister          OpKind = "register"
	OpCreateCourse      OpKind = "create_course"
	OpBuyShares         OpKind = "buy_shares"
	OpPurchase          OpKind = "purchase"
	OpDistributeProfits OpKind = "distribute_profits"
	OpWithdrawProfits   OpKind = "withdraw_profits"
)

// Operation is one ledger write to execute. Value may be nil for
// non-payable calls.
type Operation struct {
	Kind  OpKind
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Result is the finalized outcome of an operation.
type Result struct {
	TxHash  string
	GasUsed uint64
}

// Pending is a handle to an operation in flight. Await blocks until the
// operation settles or ctx expires; an expired wait abandons the handle
// but never cancels the operation, which settles on its own.
type Pending struct {
	kind   OpKind
	done   chan struct{}
	result *Result
	err    error
}

// Await blocks until the operation settles or ctx is done.
func (p *Pending) Await(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.result, p.err
	}
}

// Kind returns the operation kind behind this handle.
func (p *Pending) Kind() OpKind {
	return p.kind
}

func (p *Pending) settle(result *Result, err error) {
	p.result = result
	p.err = err
	close(p.done)
}

// NewSettledPending returns an already-settled handle. Used by stub
// submitters in tests.
func NewSettledPending(kind OpKind, result *Result, err error) *Pending {
	p := &Pending{kind: kind, done: make(chan struct{})}
	p.settle(result, err)
	return p
}

// Submitter accepts ledger writes for serialized execution.
type Submitter interface {
	Submit(ctx context.Context, op Operation) (*Pending, error)
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config holds orchestrator configuration.
type Config struct {
	Client  *chain.Client
	Signer  *wallet.SigningIdentity
	ChainID *big.Int
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	QueueSize      int
	GasLimit       uint64
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
}

type queued struct {
	op      Operation
	pending *Pending
}

// Orchestrator executes ledger writes one at a time in submission order.
type Orchestrator struct {
	cfg    Config
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
	queue  chan queued

	nonce     uint64
	nonceInit bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates an orchestrator. Call Start before submitting.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("ledger client required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signing identity required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 3_000_000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = 2 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("orchestrator", "info", "json")
	}

	return &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger.WithFields(map[string]interface{}{"signer": cfg.Signer.Address().Hex()}),
		queue:  make(chan queued, cfg.QueueSize),
		stop:   make(chan struct{}),
	}, nil
}

// Start launches the consumer goroutine.
func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go o.run()
}

// Stop drains the queue and waits for the consumer to finish. Operations
// already queued still execute; new submissions are rejected.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	o.wg.Wait()
}

// Submit enqueues an operation. Queue position is assigned under the lock,
// so two submissions that complete in a given order also execute in that
// order. Blocks while the queue is full.
func (o *Orchestrator) Submit(ctx context.Context, op Operation) (*Pending, error) {
	if len(op.Data) == 0 {
		return nil, fmt.Errorf("operation %s has no calldata", op.Kind)
	}

	pending := &Pending{kind: op.Kind, done: make(chan struct{})}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, fmt.Errorf("orchestrator stopped")
	}

	select {
	case o.queue <- queued{op: op, pending: pending}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	o.recordOp(op.Kind, "submitted")
	return pending, nil
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	for item := range o.queue {
		result, err := o.execute(item.op)
		item.pending.settle(result, err)
	}
}

// execute runs one operation to settlement: sign once, then submit with a
// bounded retry budget and wait for the receipt. Only transport-class
// failures are retried, and always with the same signed bytes, so a
// transaction can never be duplicated under a second nonce.
func (o *Orchestrator) execute(op Operation) (*Result, error) {
	ctx := context.Background()
	logger := o.logger.WithFields(map[string]interface{}{"op": string(op.Kind)})

	signed, err := o.buildAndSign(ctx, op)
	if err != nil {
		o.recordOp(op.Kind, "failed")
		return nil, err
	}

	rawTx, err := signed.MarshalBinary()
	if err != nil {
		o.recordOp(op.Kind, "failed")
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	txHash, err := o.broadcast(ctx, op, rawTx, signed.Hash().Hex(), logger)
	if err != nil {
		// The send never reached the mempool; the nonce may or may not be
		// current anymore, so resynchronize before the next operation.
		o.nonceInit = false
		o.recordOp(op.Kind, "failed")
		return nil, err
	}

	// The transaction is in the mempool; its nonce is spent whether it
	// ultimately succeeds or reverts.
	o.nonce++

	receiptCtx, cancel := context.WithTimeout(ctx, o.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := o.cfg.Client.WaitForReceipt(receiptCtx, txHash, o.cfg.ReceiptPoll)
	if err != nil {
		o.recordOp(op.Kind, "failed")
		logger.WithError(err).WithFields(map[string]interface{}{"tx_hash": txHash}).Error("receipt wait failed")
		return nil, chain.Classify(err)
	}
	if !receipt.Succeeded() {
		o.recordOp(op.Kind, "failed")
		logger.WithFields(map[string]interface{}{"tx_hash": txHash}).Warn("transaction reverted")
		return nil, chain.Reverted(fmt.Sprintf("transaction %s reverted", txHash))
	}

	o.recordOp(op.Kind, "confirmed")
	logger.WithFields(map[string]interface{}{
		"tx_hash":  txHash,
		"gas_used": receipt.GasUsedUnits(),
	}).Info("transaction confirmed")

	return &Result{TxHash: txHash, GasUsed: receipt.GasUsedUnits()}, nil
}

func (o *Orchestrator) buildAndSign(ctx context.Context, op Operation) (*types.Transaction, error) {
	if !o.nonceInit {
		nonce, err := o.cfg.Client.PendingNonce(ctx, o.cfg.Signer.Address())
		if err != nil {
			return nil, chain.Classify(fmt.Errorf("fetch nonce: %w", err))
		}
		o.nonce = nonce
		o.nonceInit = true
	}

	gasPrice, err := o.cfg.Client.GasPrice(ctx)
	if err != nil {
		return nil, chain.Classify(fmt.Errorf("fetch gas price: %w", err))
	}

	value := op.Value
	if value == nil {
		value = new(big.Int)
	}

	to := op.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    o.nonce,
		GasPrice: gasPrice,
		Gas:      o.cfg.GasLimit,
		To:       &to,
		Value:    value,
		Data:     op.Data,
	})

	return o.cfg.Signer.SignTx(tx, o.cfg.ChainID)
}

// broadcast sends rawTx, retrying transient failures with capped
// exponential backoff.
func (o *Orchestrator) broadcast(ctx context.Context, op Operation, rawTx []byte, localHash string, logger *logging.Logger) (string, error) {
	backoff := o.cfg.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", chain.Classify(ctx.Err())
			case <-time.After(jitter(backoff)):
			}
			backoff *= 2
			if backoff > o.cfg.MaxBackoff {
				backoff = o.cfg.MaxBackoff
			}
		}

		txHash, err := o.cfg.Client.SendRawTransaction(ctx, rawTx)
		if err == nil {
			return txHash, nil
		}

		// A retry resending bytes the node already holds answers with an
		// already-known or nonce-too-low rejection; the first send landed.
		if attempt > 0 && (chain.IsAlreadyKnown(err) || chain.IsNonceConflict(err)) {
			return localHash, nil
		}

		classified := chain.Classify(err)
		if !classified.Retryable() {
			return "", classified
		}

		lastErr = classified
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"op":      string(op.Kind),
		}).Warn("submission failed, retrying")
	}

	return "", fmt.Errorf("submission retries exhausted: %w", lastErr)
}

func (o *Orchestrator) recordOp(kind OpKind, outcome string) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordLedgerOp(string(kind), outcome)
	}
}

// jitter spreads d by ±20% so queued retries from different processes do
// not align.
func jitter(d time.Duration) time.Duration {
	delta := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + delta
}
