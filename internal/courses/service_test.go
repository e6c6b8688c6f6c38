package courses

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/learnledger/backend/internal/chain"
	"github.com/learnledger/backend/internal/contentstore"
	"github.com/learnledger/backend/internal/errors"
	"github.com/learnledger/backend/internal/orchestrator"
)

var (
	testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSigner   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// recorder captures the order in which the purchase gates touch the
// service dependencies.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeLedger struct {
	rec       *recorder
	count     uint64
	details   map[uint64]*chain.CourseDetails
	purchased map[uint64]bool
}

func (f *fakeLedger) Address() common.Address { return testContract }

func (f *fakeLedger) CourseCount(context.Context) (uint64, error) { return f.count, nil }

func (f *fakeLedger) GetCourseDetails(_ context.Context, id uint64) (*chain.CourseDetails, error) {
	f.rec.add("details")
	return f.details[id], nil
}

func (f *fakeLedger) HasPurchased(_ context.Context, id uint64, _ common.Address) (bool, error) {
	f.rec.add("purchased")
	return f.purchased[id], nil
}

func (f *fakeLedger) GetRemainingShares(_ context.Context, id uint64) (*big.Int, error) {
	return f.details[id].RemainingShares, nil
}

func (f *fakeLedger) CreateCourseCall(string, string, *big.Int, *big.Int) ([]byte, error) {
	return []byte{0x01, 0x02, 0x03, 0x04}, nil
}
func (f *fakeLedger) BuySharesCall(uint64, *big.Int) ([]byte, error) {
	return []byte{0x05, 0x06, 0x07, 0x08}, nil
}
func (f *fakeLedger) PurchaseCall(uint64) ([]byte, error) {
	return []byte{0x09, 0x0a, 0x0b, 0x0c}, nil
}
func (f *fakeLedger) DistributeCall(uint64) ([]byte, error) {
	return []byte{0x0d, 0x0e, 0x0f, 0x10}, nil
}
func (f *fakeLedger) WithdrawCall(uint64) ([]byte, error) {
	return []byte{0x11, 0x12, 0x13, 0x14}, nil
}

type fakeBalances struct {
	rec     *recorder
	balance *big.Int
}

func (f *fakeBalances) GetBalance(context.Context, common.Address) (*big.Int, error) {
	f.rec.add("balance")
	return f.balance, nil
}

type fakeRegistrar struct {
	rec *recorder
}

func (f *fakeRegistrar) EnsureRegistered(context.Context, common.Address) error {
	f.rec.add("register")
	return nil
}

type fakeSubmitter struct {
	rec *recorder
	mu  sync.Mutex
	ops []orchestrator.Operation
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, op orchestrator.Operation) (*orchestrator.Pending, error) {
	f.rec.add("submit")
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
	if f.err != nil {
		return orchestrator.NewSettledPending(op.Kind, nil, f.err), nil
	}
	return orchestrator.NewSettledPending(op.Kind, &orchestrator.Result{TxHash: "0xfeed", GasUsed: 21000}, nil), nil
}

type fixedRate struct{ rate *big.Rat }

func (f fixedRate) Rate(context.Context) (*big.Rat, error) { return f.rate, nil }

type fixture struct {
	service   *Service
	ledger    *fakeLedger
	balances  *fakeBalances
	registrar *fakeRegistrar
	submitter *fakeSubmitter
	store     *contentstore.MemoryStore
	rec       *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &recorder{}

	price := big.NewInt(199996000000000000)
	ledger := &fakeLedger{
		rec:   rec,
		count: 1,
		details: map[uint64]*chain.CourseDetails{
			1: {
				ID:              1,
				MetadataCID:     "QmMeta",
				VideoCID:        "QmVideo",
				PriceWei:        price,
				Owner:           testSigner,
				TotalShares:     big.NewInt(100),
				TotalProfits:    big.NewInt(0),
				RemainingShares: big.NewInt(60),
			},
		},
		purchased: map[uint64]bool{},
	}
	balances := &fakeBalances{rec: rec, balance: big.NewInt(1_000_000_000_000_000_000)}
	registrar := &fakeRegistrar{rec: rec}
	submitter := &fakeSubmitter{rec: rec}
	store := contentstore.NewMemoryStore()

	// 1e18 wei per fiat unit: one fiat unit converts to one coin.
	rate := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	service, err := New(Config{
		Ledger:    ledger,
		Balances:  balances,
		Submitter: submitter,
		Registrar: registrar,
		Rates:     fixedRate{rate: rate},
		Store:     store,
		Signer:    testSigner,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &fixture{
		service:   service,
		ledger:    ledger,
		balances:  balances,
		registrar: registrar,
		submitter: submitter,
		store:     store,
		rec:       rec,
	}
}

// =============================================================================
// Purchase
// =============================================================================

func TestPurchaseGateOrder(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.service.Purchase(context.Background(), 1)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if receipt.TxHash != "0xfeed" {
		t.Fatalf("tx hash = %s", receipt.TxHash)
	}

	want := []string{"details", "balance", "purchased", "register", "submit"}
	got := f.rec.all()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	op := f.submitter.ops[0]
	if op.Kind != orchestrator.OpPurchase {
		t.Fatalf("op kind = %s", op.Kind)
	}
	if op.Value.Cmp(f.ledger.details[1].PriceWei) != 0 {
		t.Fatalf("op value = %s, want course price", op.Value)
	}
}

func TestPurchaseInsufficientFundsSubmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.balances.balance = big.NewInt(1) // far below the course price

	_, err := f.service.Purchase(context.Background(), 1)
	if !errors.IsCode(err, errors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	for _, event := range f.rec.all() {
		if event == "register" || event == "submit" {
			t.Fatalf("underfunded purchase reached %q", event)
		}
	}
}

func TestPurchaseAlreadyPurchased(t *testing.T) {
	f := newFixture(t)
	f.ledger.purchased[1] = true

	_, err := f.service.Purchase(context.Background(), 1)
	if !errors.IsCode(err, errors.CodeAlreadyPurchased) {
		t.Fatalf("expected ALREADY_PURCHASED, got %v", err)
	}
	if len(f.submitter.ops) != 0 {
		t.Fatal("no transaction may be submitted for a duplicate purchase")
	}
}

func TestPurchaseUnknownCourse(t *testing.T) {
	f := newFixture(t)

	for _, id := range []uint64{0, 2, 99} {
		_, err := f.service.Purchase(context.Background(), id)
		if !errors.IsCode(err, errors.CodeNotFound) {
			t.Errorf("course %d: expected NOT_FOUND, got %v", id, err)
		}
	}
}

func TestPurchaseMapsRevert(t *testing.T) {
	f := newFixture(t)
	f.submitter.err = chain.Reverted("execution reverted")

	_, err := f.service.Purchase(context.Background(), 1)
	if !errors.IsCode(err, errors.CodeChainRejected) {
		t.Fatalf("expected CHAIN_REJECTED, got %v", err)
	}
}

// =============================================================================
// Create
// =============================================================================

func TestCreateUploadsContentAndSubmits(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.service.Create(context.Background(), CreateInput{
		Author:        "Ada",
		Title:         "Intro to Ledgers",
		Description:   "From genesis to finality",
		ContentPoints: []string{"blocks", "finality"},
		Topics:        []string{"blockchain"},
		Duration:      "6h",
		PriceFiat:     "499.99",
		OwnerShares:   100,
		Video:         []byte("video-bytes"),
		VideoName:     "intro.mp4",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// At 1e18 wei per fiat unit the price converts coin-for-fiat.
	want, _ := new(big.Int).SetString("499990000000000000000", 10)
	if receipt.PriceWei != want.String() {
		t.Fatalf("price wei = %s, want %s", receipt.PriceWei, want)
	}

	// Both the video and the metadata document were stored.
	if _, err := f.store.Get(context.Background(), receipt.VideoCID); err != nil {
		t.Fatalf("video not stored: %v", err)
	}
	metaBytes, err := f.store.Get(context.Background(), receipt.MetadataCID)
	if err != nil {
		t.Fatalf("metadata not stored: %v", err)
	}
	meta, err := DecodeCourseMetadata(metaBytes)
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Title != "Intro to Ledgers" || meta.Author != "Ada" || meta.Duration != "6h" {
		t.Fatalf("metadata = %+v", meta)
	}
	if len(meta.Topics) != 1 || meta.Topics[0] != "blockchain" {
		t.Fatalf("metadata topics = %v", meta.Topics)
	}

	if len(f.submitter.ops) != 1 || f.submitter.ops[0].Kind != orchestrator.OpCreateCourse {
		t.Fatalf("ops = %+v", f.submitter.ops)
	}
	if receipt.CourseID != 1 {
		t.Fatalf("course id = %d, want 1", receipt.CourseID)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	cases := []CreateInput{
		{Title: "", Author: "a", PriceFiat: "10", OwnerShares: 10, Video: []byte("v")},
		{Title: "x", Author: "", PriceFiat: "10", OwnerShares: 10, Video: []byte("v")},
		{Title: "x", Author: "a", PriceFiat: "10", OwnerShares: 10},
		{Title: "x", Author: "a", PriceFiat: "10", OwnerShares: 0, Video: []byte("v")},
		{Title: "x", Author: "a", PriceFiat: "-10", OwnerShares: 10, Video: []byte("v")},
	}
	for i, input := range cases {
		_, err := f.service.Create(context.Background(), input)
		if !errors.IsCode(err, errors.CodeValidationFailed) {
			t.Errorf("case %d: expected VALIDATION_FAILED, got %v", i, err)
		}
	}
	if len(f.submitter.ops) != 0 {
		t.Fatal("invalid input must not reach the ledger")
	}
}

// =============================================================================
// Shares and profits
// =============================================================================

func TestBuySharesChecksRemaining(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.BuyShares(context.Background(), 1, 60); err != nil {
		t.Fatalf("buy shares at the limit: %v", err)
	}

	_, err := f.service.BuyShares(context.Background(), 1, 61)
	if !errors.IsCode(err, errors.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED for oversubscription, got %v", err)
	}

	if _, err := f.service.BuyShares(context.Background(), 1, 0); err == nil {
		t.Fatal("zero shares must be rejected")
	}
}

func TestDistributeProfits(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.service.DistributeProfits(context.Background(), 1, "0.5")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if receipt.TxHash == "" {
		t.Fatal("missing tx hash")
	}

	op := f.submitter.ops[len(f.submitter.ops)-1]
	want, _ := new(big.Int).SetString("500000000000000000", 10)
	if op.Kind != orchestrator.OpDistributeProfits || op.Value.Cmp(want) != 0 {
		t.Fatalf("op = %+v", op)
	}
	assertRegisteredBeforeSubmit(t, f.rec.all())

	_, err = f.service.DistributeProfits(context.Background(), 1, "5000")
	if !errors.IsCode(err, errors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	_, err = f.service.DistributeProfits(context.Background(), 1, "nope")
	if !errors.IsCode(err, errors.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestWithdrawProfits(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.service.WithdrawProfits(context.Background(), 1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if receipt.CourseID != 1 {
		t.Fatalf("course id = %d", receipt.CourseID)
	}
	op := f.submitter.ops[0]
	if op.Kind != orchestrator.OpWithdrawProfits || op.Value != nil {
		t.Fatalf("op = %+v", op)
	}
	assertRegisteredBeforeSubmit(t, f.rec.all())
}

// assertRegisteredBeforeSubmit checks that every ledger write was preceded
// by a registration check.
func assertRegisteredBeforeSubmit(t *testing.T, events []string) {
	t.Helper()
	registered := -1
	for i, event := range events {
		if event == "register" && registered == -1 {
			registered = i
		}
		if event == "submit" && (registered == -1 || registered > i) {
			t.Fatalf("submit before registration: %v", events)
		}
	}
	if registered == -1 {
		t.Fatalf("registration never ensured: %v", events)
	}
}
