package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// courseLedgerABI is the course contract interface, reduced to the
// functions the backend uses.
const courseLedgerABI = `[
  {"inputs":[],"name":"courseCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"courses","outputs":[{"internalType":"string","name":"metadataIPFSHash","type":"string"},{"internalType":"string","name":"videoIPFSHash","type":"string"},{"internalType":"uint256","name":"price","type":"uint256"},{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"totalShares","type":"uint256"},{"internalType":"uint256","name":"totalProfits","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"}],"name":"getRemainingShares","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"address","name":"","type":"address"}],"name":"coursePurchases","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"registeredUsers","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"},{"internalType":"address","name":"_owner","type":"address"}],"name":"getOwnershipShares","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"},{"internalType":"address","name":"_user","type":"address"}],"name":"hasAccessToCourse","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"_user","type":"address"}],"name":"getUserAccessibleCourses","outputs":[{"internalType":"uint256[]","name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"}],"name":"getCourseOwner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"}],"name":"getCourseVideo","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"registerUser","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"string","name":"_metadataIPFSHash","type":"string"},{"internalType":"string","name":"_videoIPFSHash","type":"string"},{"internalType":"uint256","name":"_price","type":"uint256"},{"internalType":"uint256","name":"_ownerShares","type":"uint256"}],"name":"createCourse","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"},{"internalType":"uint256","name":"_shares","type":"uint256"}],"name":"buyCourseShares","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"}],"name":"purchaseCourse","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"}],"name":"distributeProfits","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"_courseId","type":"uint256"}],"name":"withdrawProfits","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// CourseLedger is the typed binding over the course contract. Read methods
// fetch authoritative state; *Call methods build calldata for the
// orchestrator and never touch the network.
type CourseLedger struct {
	client   *Client
	contract common.Address
	abi      abi.ABI
}

// NewCourseLedger binds the contract at contractAddress.
func NewCourseLedger(client *Client, contractAddress string) (*CourseLedger, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(courseLedgerABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}

	return &CourseLedger{
		client:   client,
		contract: common.HexToAddress(contractAddress),
		abi:      parsed,
	}, nil
}

// Address returns the contract address all operations target.
func (l *CourseLedger) Address() common.Address {
	return l.contract
}

// Client exposes the underlying RPC client.
func (l *CourseLedger) Client() *Client {
	return l.client
}

func (l *CourseLedger) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	output, err := l.client.CallContract(ctx, l.contract, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := l.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// =============================================================================
// Reads
// =============================================================================

// CourseCount returns the number of courses ever created. Course ids are
// sequential starting at 1.
func (l *CourseLedger) CourseCount(ctx context.Context) (uint64, error) {
	values, err := l.call(ctx, "courseCount")
	if err != nil {
		return 0, err
	}
	count, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("courseCount: unexpected output type %T", values[0])
	}
	return count.Uint64(), nil
}

// GetCourseDetails returns the full on-chain record for a course,
// including its remaining shares.
func (l *CourseLedger) GetCourseDetails(ctx context.Context, courseID uint64) (*CourseDetails, error) {
	id := new(big.Int).SetUint64(courseID)

	values, err := l.call(ctx, "courses", id)
	if err != nil {
		return nil, err
	}
	if len(values) != 6 {
		return nil, fmt.Errorf("courses: expected 6 outputs, got %d", len(values))
	}

	details := &CourseDetails{ID: courseID}
	var ok bool
	if details.MetadataCID, ok = values[0].(string); !ok {
		return nil, fmt.Errorf("courses: unexpected metadata type %T", values[0])
	}
	if details.VideoCID, ok = values[1].(string); !ok {
		return nil, fmt.Errorf("courses: unexpected video type %T", values[1])
	}
	if details.PriceWei, ok = values[2].(*big.Int); !ok {
		return nil, fmt.Errorf("courses: unexpected price type %T", values[2])
	}
	if details.Owner, ok = values[3].(common.Address); !ok {
		return nil, fmt.Errorf("courses: unexpected owner type %T", values[3])
	}
	if details.TotalShares, ok = values[4].(*big.Int); !ok {
		return nil, fmt.Errorf("courses: unexpected totalShares type %T", values[4])
	}
	if details.TotalProfits, ok = values[5].(*big.Int); !ok {
		return nil, fmt.Errorf("courses: unexpected totalProfits type %T", values[5])
	}

	details.RemainingShares, err = l.GetRemainingShares(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// GetRemainingShares returns the unsold share count for a course.
func (l *CourseLedger) GetRemainingShares(ctx context.Context, courseID uint64) (*big.Int, error) {
	values, err := l.call(ctx, "getRemainingShares", new(big.Int).SetUint64(courseID))
	if err != nil {
		return nil, err
	}
	shares, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getRemainingShares: unexpected output type %T", values[0])
	}
	return shares, nil
}

// HasPurchased reports whether address has purchased the course.
func (l *CourseLedger) HasPurchased(ctx context.Context, courseID uint64, address common.Address) (bool, error) {
	values, err := l.call(ctx, "coursePurchases", new(big.Int).SetUint64(courseID), address)
	if err != nil {
		return false, err
	}
	purchased, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("coursePurchases: unexpected output type %T", values[0])
	}
	return purchased, nil
}

// IsRegistered reports whether address is registered on the ledger.
func (l *CourseLedger) IsRegistered(ctx context.Context, address common.Address) (bool, error) {
	values, err := l.call(ctx, "registeredUsers", address)
	if err != nil {
		return false, err
	}
	registered, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("registeredUsers: unexpected output type %T", values[0])
	}
	return registered, nil
}

// GetOwnershipShares returns the shares address holds in a course.
func (l *CourseLedger) GetOwnershipShares(ctx context.Context, courseID uint64, address common.Address) (*big.Int, error) {
	values, err := l.call(ctx, "getOwnershipShares", new(big.Int).SetUint64(courseID), address)
	if err != nil {
		return nil, err
	}
	shares, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getOwnershipShares: unexpected output type %T", values[0])
	}
	return shares, nil
}

// HasAccess reports whether address can view the course content.
func (l *CourseLedger) HasAccess(ctx context.Context, courseID uint64, address common.Address) (bool, error) {
	values, err := l.call(ctx, "hasAccessToCourse", new(big.Int).SetUint64(courseID), address)
	if err != nil {
		return false, err
	}
	access, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasAccessToCourse: unexpected output type %T", values[0])
	}
	return access, nil
}

// AccessibleCourses returns the ids of courses address can access.
func (l *CourseLedger) AccessibleCourses(ctx context.Context, address common.Address) ([]uint64, error) {
	values, err := l.call(ctx, "getUserAccessibleCourses", address)
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getUserAccessibleCourses: unexpected output type %T", values[0])
	}

	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

// GetCourseOwner returns the course owner address.
func (l *CourseLedger) GetCourseOwner(ctx context.Context, courseID uint64) (common.Address, error) {
	values, err := l.call(ctx, "getCourseOwner", new(big.Int).SetUint64(courseID))
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("getCourseOwner: unexpected output type %T", values[0])
	}
	return owner, nil
}

// GetCourseVideo returns the content id of the course media.
func (l *CourseLedger) GetCourseVideo(ctx context.Context, courseID uint64) (string, error) {
	values, err := l.call(ctx, "getCourseVideo", new(big.Int).SetUint64(courseID))
	if err != nil {
		return "", err
	}
	videoCID, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("getCourseVideo: unexpected output type %T", values[0])
	}
	return videoCID, nil
}

// =============================================================================
// Write calldata builders
// =============================================================================

// RegisterCall builds the registerUser calldata.
func (l *CourseLedger) RegisterCall() ([]byte, error) {
	return l.abi.Pack("registerUser")
}

// CreateCourseCall builds the createCourse calldata.
func (l *CourseLedger) CreateCourseCall(metadataCID, videoCID string, priceWei, ownerShares *big.Int) ([]byte, error) {
	return l.abi.Pack("createCourse", metadataCID, videoCID, priceWei, ownerShares)
}

// BuySharesCall builds the buyCourseShares calldata.
func (l *CourseLedger) BuySharesCall(courseID uint64, shares *big.Int) ([]byte, error) {
	return l.abi.Pack("buyCourseShares", new(big.Int).SetUint64(courseID), shares)
}

// PurchaseCall builds the purchaseCourse calldata; the price travels as the
// transaction value.
func (l *CourseLedger) PurchaseCall(courseID uint64) ([]byte, error) {
	return l.abi.Pack("purchaseCourse", new(big.Int).SetUint64(courseID))
}

// DistributeCall builds the distributeProfits calldata; the distributed
// amount travels as the transaction value.
func (l *CourseLedger) DistributeCall(courseID uint64) ([]byte, error) {
	return l.abi.Pack("distributeProfits", new(big.Int).SetUint64(courseID))
}

// WithdrawCall builds the withdrawProfits calldata.
func (l *CourseLedger) WithdrawCall(courseID uint64) ([]byte, error) {
	return l.abi.Pack("withdrawProfits", new(big.Int).SetUint64(courseID))
}
