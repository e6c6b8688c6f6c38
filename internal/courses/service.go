package courses

import (
	"context"
	"fmt"
	"math/big"
	"path"

	"github.com/ethereum/go-ethereum/common"

	"github.com/learnledger/backend/internal/chain"
	"github.com/learnledger/backend/internal/contentstore"
	"github.com/learnledger/backend/internal/errors"
	"github.com/learnledger/backend/internal/logging"
	"github.com/learnledger/backend/internal/orchestrator"
	"github.com/learnledger/backend/internal/pricing"
)

// Ledger is the course surface of the contract binding.
type Ledger interface {
	Address() common.Address
	CourseCount(ctx context.Context) (uint64, error)
	GetCourseDetails(ctx context.Context, courseID uint64) (*chain.CourseDetails, error)
	HasPurchased(ctx context.Context, courseID uint64, address common.Address) (bool, error)
	GetRemainingShares(ctx context.Context, courseID uint64) (*big.Int, error)
	CreateCourseCall(metadataCID, videoCID string, priceWei, ownerShares *big.Int) ([]byte, error)
	BuySharesCall(courseID uint64, shares *big.Int) ([]byte, error)
	PurchaseCall(courseID uint64) ([]byte, error)
	DistributeCall(courseID uint64) ([]byte, error)
	WithdrawCall(courseID uint64) ([]byte, error)
}

// Balances reads native-coin balances.
type Balances interface {
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
}

// Registrar guarantees ledger registration before writes that need it.
type Registrar interface {
	EnsureRegistered(ctx context.Context, address common.Address) error
}

// RateSource provides the wei-per-fiat conversion rate.
type RateSource interface {
	Rate(ctx context.Context) (*big.Rat, error)
}

// Config holds course service dependencies.
type Config struct {
	Ledger    Ledger
	Balances  Balances
	Submitter orchestrator.Submitter
	Registrar Registrar
	Rates     RateSource
	Store     contentstore.Store
	Signer    common.Address
	Logger    *logging.Logger
}

// Service implements the course lifecycle operations.
type Service struct {
	cfg    Config
	logger *logging.Logger
}

// New creates the course service.
func New(cfg Config) (*Service, error) {
	if cfg.Ledger == nil || cfg.Submitter == nil || cfg.Registrar == nil {
		return nil, fmt.Errorf("ledger, submitter and registrar are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("courses", "info", "json")
	}
	return &Service{cfg: cfg, logger: cfg.Logger}, nil
}

// =============================================================================
// Creation
// =============================================================================

// CreateInput is the validated input for course creation. Video holds the
// raw media bytes; PriceFiat is a decimal fiat amount. OwnerShares is the
// total share supply minted to the course on creation.
type CreateInput struct {
	Author        string
	Title         string
	Description   string
	ContentPoints []string
	Topics        []string
	Duration      string
	PriceFiat     string
	OwnerShares   uint64
	Video         []byte
	VideoName     string
}

// CreateReceipt reports a confirmed course creation.
type CreateReceipt struct {
	CourseID    uint64 `json:"courseId,omitempty"`
	MetadataCID string `json:"metadataCid"`
	VideoCID    string `json:"videoCid"`
	PriceWei    string `json:"priceWei"`
	TxHash      string `json:"transactionHash"`
}

// Create uploads the course content, converts the fiat price to wei at the
// current rate, and records the course on the ledger. The conversion
// happens exactly once, here: the on-chain price is final and later rate
// movements never touch existing courses.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CreateReceipt, error) {
	if input.Title == "" {
		return nil, errors.Validation("course title is required")
	}
	if input.Author == "" {
		return nil, errors.Validation("course author is required")
	}
	if len(input.Video) == 0 {
		return nil, errors.Validation("course video is required")
	}
	if input.OwnerShares == 0 {
		return nil, errors.Validation("owner shares must be positive")
	}

	fiat, err := pricing.ParseFiatAmount(input.PriceFiat)
	if err != nil {
		return nil, err
	}
	rate, err := s.cfg.Rates.Rate(ctx)
	if err != nil {
		return nil, errors.Internal("resolve conversion rate", err)
	}
	priceWei := pricing.ToWei(fiat, rate)
	if priceWei.Sign() <= 0 {
		return nil, errors.Validation("price converts to zero ledger units")
	}

	videoCID, err := s.cfg.Store.Put(ctx, input.Video, videoNameHint(input))
	if err != nil {
		return nil, errors.ContentStoreUnavailable(err)
	}

	meta := &CourseMetadata{
		Author:        input.Author,
		Title:         input.Title,
		Description:   input.Description,
		ContentPoints: input.ContentPoints,
		Topics:        input.Topics,
		Duration:      input.Duration,
	}
	metaBytes, err := meta.Encode()
	if err != nil {
		return nil, errors.Internal("encode metadata", err)
	}
	metadataCID, err := s.cfg.Store.Put(ctx, metaBytes, input.Title+"-metadata.json")
	if err != nil {
		return nil, errors.ContentStoreUnavailable(err)
	}

	if err := s.cfg.Registrar.EnsureRegistered(ctx, s.cfg.Signer); err != nil {
		return nil, err
	}

	data, err := s.cfg.Ledger.CreateCourseCall(metadataCID, videoCID, priceWei, new(big.Int).SetUint64(input.OwnerShares))
	if err != nil {
		return nil, errors.Internal("build creation calldata", err)
	}

	result, err := s.submitAndAwait(ctx, orchestrator.Operation{
		Kind: orchestrator.OpCreateCourse,
		To:   s.cfg.Ledger.Address(),
		Data: data,
	})
	if err != nil {
		return nil, err
	}

	receipt := &CreateReceipt{
		MetadataCID: metadataCID,
		VideoCID:    videoCID,
		PriceWei:    priceWei.String(),
		TxHash:      result.TxHash,
	}

	// Best effort: the new course takes the next sequential id.
	if count, countErr := s.cfg.Ledger.CourseCount(ctx); countErr == nil {
		receipt.CourseID = count
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"course":    input.Title,
		"price_wei": priceWei.String(),
		"tx_hash":   result.TxHash,
	}).Info("course created")
	return receipt, nil
}

// videoNameHint builds the pinned media name from the course fields,
// keeping the upload's original extension.
func videoNameHint(input CreateInput) string {
	return fmt.Sprintf("%s-%s-video%s", input.Title, input.Author, path.Ext(input.VideoName))
}

// =============================================================================
// Purchase
// =============================================================================

// TxReceipt reports a confirmed ledger write.
type TxReceipt struct {
	CourseID uint64 `json:"courseId"`
	TxHash   string `json:"transactionHash"`
	GasUsed  uint64 `json:"gasUsed"`
}

// Purchase buys full access to a course. Gates run in a fixed order:
// existence, balance, duplicate purchase, registration. The balance check
// precedes registration so an underfunded request submits nothing at all.
func (s *Service) Purchase(ctx context.Context, courseID uint64) (*TxReceipt, error) {
	details, err := s.requireCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	balance, err := s.cfg.Balances.GetBalance(ctx, s.cfg.Signer)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	if balance.Cmp(details.PriceWei) < 0 {
		return nil, errors.InsufficientFunds("").
			WithDetails("price_wei", details.PriceWei.String()).
			WithDetails("balance_wei", balance.String())
	}

	purchased, err := s.cfg.Ledger.HasPurchased(ctx, courseID, s.cfg.Signer)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	if purchased {
		return nil, errors.AlreadyPurchased(courseID)
	}

	if err := s.cfg.Registrar.EnsureRegistered(ctx, s.cfg.Signer); err != nil {
		return nil, err
	}

	data, err := s.cfg.Ledger.PurchaseCall(courseID)
	if err != nil {
		return nil, errors.Internal("build purchase calldata", err)
	}

	result, err := s.submitAndAwait(ctx, orchestrator.Operation{
		Kind:  orchestrator.OpPurchase,
		To:    s.cfg.Ledger.Address(),
		Value: details.PriceWei,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"course_id": courseID,
		"tx_hash":   result.TxHash,
	}).Info("course purchased")
	return &TxReceipt{CourseID: courseID, TxHash: result.TxHash, GasUsed: result.GasUsed}, nil
}

// =============================================================================
// Shares and profits
// =============================================================================

// BuyShares buys ownership shares in a course.
func (s *Service) BuyShares(ctx context.Context, courseID, shares uint64) (*TxReceipt, error) {
	if shares == 0 {
		return nil, errors.Validation("share count must be positive")
	}

	if _, err := s.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}

	remaining, err := s.cfg.Ledger.GetRemainingShares(ctx, courseID)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	if remaining.Cmp(new(big.Int).SetUint64(shares)) < 0 {
		return nil, errors.Validation("not enough shares remaining").
			WithDetails("remaining", remaining.String()).
			WithDetails("requested", shares)
	}

	if err := s.cfg.Registrar.EnsureRegistered(ctx, s.cfg.Signer); err != nil {
		return nil, err
	}

	data, err := s.cfg.Ledger.BuySharesCall(courseID, new(big.Int).SetUint64(shares))
	if err != nil {
		return nil, errors.Internal("build share purchase calldata", err)
	}

	result, err := s.submitAndAwait(ctx, orchestrator.Operation{
		Kind: orchestrator.OpBuyShares,
		To:   s.cfg.Ledger.Address(),
		Data: data,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"course_id": courseID,
		"shares":    shares,
		"tx_hash":   result.TxHash,
	}).Info("shares purchased")
	return &TxReceipt{CourseID: courseID, TxHash: result.TxHash, GasUsed: result.GasUsed}, nil
}

// DistributeProfits sends amount (a decimal coin string) to the course for
// pro-rata distribution to shareholders.
func (s *Service) DistributeProfits(ctx context.Context, courseID uint64, amount string) (*TxReceipt, error) {
	amountWei, err := pricing.ParseCoinAmount(amount)
	if err != nil {
		return nil, err
	}

	if _, err := s.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}

	balance, err := s.cfg.Balances.GetBalance(ctx, s.cfg.Signer)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	if balance.Cmp(amountWei) < 0 {
		return nil, errors.InsufficientFunds("distribution amount exceeds balance")
	}

	if err := s.cfg.Registrar.EnsureRegistered(ctx, s.cfg.Signer); err != nil {
		return nil, err
	}

	data, err := s.cfg.Ledger.DistributeCall(courseID)
	if err != nil {
		return nil, errors.Internal("build distribution calldata", err)
	}

	result, err := s.submitAndAwait(ctx, orchestrator.Operation{
		Kind:  orchestrator.OpDistributeProfits,
		To:    s.cfg.Ledger.Address(),
		Value: amountWei,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"course_id":  courseID,
		"amount_wei": amountWei.String(),
		"tx_hash":    result.TxHash,
	}).Info("profits distributed")
	return &TxReceipt{CourseID: courseID, TxHash: result.TxHash, GasUsed: result.GasUsed}, nil
}

// WithdrawProfits withdraws the signer's accumulated share of a course's
// profits.
func (s *Service) WithdrawProfits(ctx context.Context, courseID uint64) (*TxReceipt, error) {
	if _, err := s.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}

	if err := s.cfg.Registrar.EnsureRegistered(ctx, s.cfg.Signer); err != nil {
		return nil, err
	}

	data, err := s.cfg.Ledger.WithdrawCall(courseID)
	if err != nil {
		return nil, errors.Internal("build withdrawal calldata", err)
	}

	result, err := s.submitAndAwait(ctx, orchestrator.Operation{
		Kind: orchestrator.OpWithdrawProfits,
		To:   s.cfg.Ledger.Address(),
		Data: data,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"course_id": courseID,
		"tx_hash":   result.TxHash,
	}).Info("profits withdrawn")
	return &TxReceipt{CourseID: courseID, TxHash: result.TxHash, GasUsed: result.GasUsed}, nil
}

// =============================================================================
// Helpers
// =============================================================================

// requireCourse loads a course, mapping an out-of-range id to NOT_FOUND.
func (s *Service) requireCourse(ctx context.Context, courseID uint64) (*chain.CourseDetails, error) {
	if courseID == 0 {
		return nil, errors.NotFound(fmt.Sprintf("course %d not found", courseID))
	}
	count, err := s.cfg.Ledger.CourseCount(ctx)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	if courseID > count {
		return nil, errors.NotFound(fmt.Sprintf("course %d not found", courseID))
	}

	details, err := s.cfg.Ledger.GetCourseDetails(ctx, courseID)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	return details, nil
}

// submitAndAwait runs one ledger write to settlement and maps chain
// failures onto the service error taxonomy.
func (s *Service) submitAndAwait(ctx context.Context, op orchestrator.Operation) (*orchestrator.Result, error) {
	pending, err := s.cfg.Submitter.Submit(ctx, op)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}

	result, err := pending.Await(ctx)
	if err != nil {
		return nil, MapChainError(err)
	}
	return result, nil
}

// MapChainError converts a classified chain failure into a service error.
func MapChainError(err error) error {
	if svcErr := errors.GetServiceError(err); svcErr != nil {
		return svcErr
	}
	if chainErr := chain.AsError(err); chainErr != nil {
		switch chainErr.Kind {
		case chain.KindInsufficientFunds:
			return errors.InsufficientFunds(chainErr.Reason)
		case chain.KindReverted:
			return errors.ChainRejected(chainErr.Reason, err)
		default:
			return errors.ChainUnavailable(err)
		}
	}
	return errors.ChainUnavailable(err)
}
