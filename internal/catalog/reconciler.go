// Package catalog assembles the course listing by merging authoritative
// ledger state with metadata documents from the content store. Ledger
// reads are load-bearing and abort the listing; metadata reads degrade to
// placeholder fields, so one unpinned document never hides a course.
package catalog

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/learnledger/backend/internal/chain"
	"github.com/learnledger/backend/internal/contentstore"
	"github.com/learnledger/backend/internal/courses"
	"github.com/learnledger/backend/internal/errors"
	"github.com/learnledger/backend/internal/logging"
	"github.com/learnledger/backend/internal/pricing"
)

// unknownField labels metadata fields that cannot be resolved.
const unknownField = "Unknown"

// Ledger is the read surface the catalog needs.
type Ledger interface {
	CourseCount(ctx context.Context) (uint64, error)
	GetCourseDetails(ctx context.Context, courseID uint64) (*chain.CourseDetails, error)
	HasPurchased(ctx context.Context, courseID uint64, address common.Address) (bool, error)
}

// CourseView is one catalog entry. Video content ids are exposed only for
// purchased courses.
type CourseView struct {
	ID              uint64   `json:"id"`
	Name            string   `json:"name"`
	Author          string   `json:"author"`
	Description     string   `json:"description"`
	ContentPoints   []string `json:"contentPoints"`
	Topics          []string `json:"topics"`
	Duration        string   `json:"duration"`
	PriceCoin       string   `json:"price"`
	PriceWei        string   `json:"priceWei"`
	Owner           string   `json:"owner"`
	MetadataCID     string   `json:"metadataCid"`
	VideoCID        string   `json:"videoCid,omitempty"`
	TotalShares     string   `json:"totalShares"`
	RemainingShares string   `json:"remainingShares"`
	TotalProfits    string   `json:"totalProfits"`
	Purchased       bool     `json:"hasPurchased"`
}

// Config holds catalog dependencies. Viewer is the identity purchase flags
// are computed for.
type Config struct {
	Ledger Ledger
	Store  contentstore.Store
	Viewer common.Address
	Fanout int
	Logger *logging.Logger
}

// Reconciler builds catalog views.
type Reconciler struct {
	cfg    Config
	logger *logging.Logger
}

// New creates a catalog reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Ledger == nil || cfg.Store == nil {
		return nil, fmt.Errorf("ledger and content store are required")
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("catalog", "info", "json")
	}
	return &Reconciler{cfg: cfg, logger: cfg.Logger}, nil
}

// List returns all courses in id order. Per-course assembly fans out with
// a bounded worker count; any ledger failure aborts the whole listing.
func (r *Reconciler) List(ctx context.Context) ([]*CourseView, error) {
	count, err := r.cfg.Ledger.CourseCount(ctx)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	if count == 0 {
		return []*CourseView{}, nil
	}

	views := make([]*CourseView, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Fanout)
	for id := uint64(1); id <= count; id++ {
		id := id
		g.Go(func() error {
			view, err := r.assemble(gctx, id)
			if err != nil {
				return err
			}
			views[id-1] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return views, nil
}

// Get returns a single course view, or NOT_FOUND for an unknown id.
func (r *Reconciler) Get(ctx context.Context, courseID uint64) (*CourseView, error) {
	count, err := r.cfg.Ledger.CourseCount(ctx)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}
	if courseID == 0 || courseID > count {
		return nil, errors.NotFound(fmt.Sprintf("course %d not found", courseID))
	}
	return r.assemble(ctx, courseID)
}

func (r *Reconciler) assemble(ctx context.Context, courseID uint64) (*CourseView, error) {
	details, err := r.cfg.Ledger.GetCourseDetails(ctx, courseID)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}

	purchased, err := r.cfg.Ledger.HasPurchased(ctx, courseID, r.cfg.Viewer)
	if err != nil {
		return nil, errors.ChainUnavailable(err)
	}

	view := &CourseView{
		ID:              courseID,
		Name:            unknownField,
		Author:          unknownField,
		Duration:        unknownField,
		ContentPoints:   []string{},
		Topics:          []string{},
		PriceCoin:       pricing.FormatCoin(details.PriceWei),
		PriceWei:        details.PriceWei.String(),
		Owner:           details.Owner.Hex(),
		MetadataCID:     details.MetadataCID,
		TotalShares:     details.TotalShares.String(),
		RemainingShares: details.RemainingShares.String(),
		TotalProfits:    details.TotalProfits.String(),
		Purchased:       purchased,
	}
	if purchased {
		view.VideoCID = details.VideoCID
	}

	meta := r.fetchMetadata(ctx, courseID, details.MetadataCID)
	if meta != nil {
		if meta.Title != "" {
			view.Name = meta.Title
		}
		if meta.Author != "" {
			view.Author = meta.Author
		}
		if meta.Duration != "" {
			view.Duration = meta.Duration
		}
		if meta.ContentPoints != nil {
			view.ContentPoints = meta.ContentPoints
		}
		if meta.Topics != nil {
			view.Topics = meta.Topics
		}
		view.Description = meta.Description
	}

	return view, nil
}

// fetchMetadata resolves a course metadata document, returning nil on any
// failure. Failures are logged and the catalog entry keeps its ledger
// fields with placeholder text.
func (r *Reconciler) fetchMetadata(ctx context.Context, courseID uint64, metadataCID string) *courses.CourseMetadata {
	if metadataCID == "" {
		return nil
	}

	data, err := r.cfg.Store.Get(ctx, metadataCID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"course_id": courseID,
			"cid":       metadataCID,
		}).Warn("course metadata unavailable")
		return nil
	}

	meta, err := courses.DecodeCourseMetadata(data)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"course_id": courseID,
			"cid":       metadataCID,
		}).Warn("course metadata malformed")
		return nil
	}
	return meta
}
