package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/learnledger/backend/internal/courses"
	"github.com/learnledger/backend/internal/errors"
	"github.com/learnledger/backend/internal/httputil"
	"github.com/learnledger/backend/internal/wallet"
)

// =============================================================================
// Health
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "learnledger-gateway",
	})
}

// =============================================================================
// Auth
// =============================================================================

type loginRequest struct {
	Address   string `json:"walletAddress"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Token     string `json:"token"`
	Address   string `json:"walletAddress"`
	ExpiresIn int64  `json:"expiresIn"`
}

// handleLogin verifies a wallet signature over the canonical login message
// and issues a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Address == "" || req.Signature == "" {
		httputil.BadRequest(w, "walletAddress and signature are required")
		return
	}

	message := fmt.Sprintf(s.cfg.MessageTemplate, req.Address)
	if err := wallet.Verify(req.Address, message, req.Signature); err != nil {
		s.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"address": req.Address,
		}).Warn("login rejected")
		httputil.WriteServiceError(w, err)
		return
	}

	token, err := s.cfg.Issuer.Issue(req.Address)
	if err != nil {
		httputil.WriteServiceError(w, errors.Internal("issue token", err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		Address:   req.Address,
		ExpiresIn: int64(s.cfg.Issuer.TTL().Seconds()),
	})
}

// =============================================================================
// Courses
// =============================================================================

// handleAddCourse accepts a multipart form with the course fields and the
// video file.
func (s *Server) handleAddCourse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		httputil.BadRequest(w, "invalid multipart form")
		return
	}

	ownerShares, err := strconv.ParseUint(r.FormValue("ownerShares"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "ownerShares must be a positive integer")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		httputil.BadRequest(w, "video file is required")
		return
	}
	defer file.Close()

	video, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteServiceError(w, errors.Internal("read upload", err))
		return
	}

	receipt, err := s.cfg.Courses.Create(r.Context(), courses.CreateInput{
		Author:        r.FormValue("author"),
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		ContentPoints: splitList(r.FormValue("contentPoints")),
		Topics:        splitList(r.FormValue("topics")),
		Duration:      r.FormValue("duration"),
		PriceFiat:     r.FormValue("priceInFiat"),
		OwnerShares:   ownerShares,
		Video:         video,
		VideoName:     header.Filename,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	views, err := s.cfg.Catalog.List(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"courses": views})
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, ok := s.courseID(w, r)
	if !ok {
		return
	}

	view, err := s.cfg.Catalog.Get(r.Context(), courseID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// =============================================================================
// Ledger operations
// =============================================================================

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	courseID, ok := s.courseID(w, r)
	if !ok {
		return
	}

	receipt, err := s.cfg.Courses.Purchase(r.Context(), courseID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

type buySharesRequest struct {
	Shares uint64 `json:"shares"`
}

func (s *Server) handleBuyShares(w http.ResponseWriter, r *http.Request) {
	courseID, ok := s.courseID(w, r)
	if !ok {
		return
	}

	var req buySharesRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	receipt, err := s.cfg.Courses.BuyShares(r.Context(), courseID, req.Shares)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

type distributeRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	courseID, ok := s.courseID(w, r)
	if !ok {
		return
	}

	var req distributeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	receipt, err := s.cfg.Courses.DistributeProfits(r.Context(), courseID, req.Amount)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	courseID, ok := s.courseID(w, r)
	if !ok {
		return
	}

	receipt, err := s.cfg.Courses.WithdrawProfits(r.Context(), courseID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

// splitList parses a comma-separated form field into its trimmed,
// non-empty items.
func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func (s *Server) courseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		httputil.BadRequest(w, "invalid course id")
		return 0, false
	}
	return id, true
}
