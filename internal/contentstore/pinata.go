package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/learnledger/backend/internal/logging"
)

// PinataConfig configures the Pinata-backed store.
type PinataConfig struct {
	APIURL     string
	GatewayURL string
	APIKey     string
	SecretKey  string
	Timeout    time.Duration
	Logger     *logging.Logger
}

// PinataStore pins content through the Pinata HTTP API and reads it back
// through an IPFS gateway.
type PinataStore struct {
	api     *resty.Client
	gateway *resty.Client
	logger  *logging.Logger
}

// NewPinataStore creates a Pinata-backed store.
func NewPinataStore(cfg PinataConfig) (*PinataStore, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("pinata credentials required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("contentstore", "info", "json")
	}

	api := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(timeout).
		SetHeader("pinata_api_key", cfg.APIKey).
		SetHeader("pinata_secret_api_key", cfg.SecretKey)

	gateway := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(timeout)

	return &PinataStore{api: api, gateway: gateway, logger: logger}, nil
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Put pins data and returns its content id.
func (s *PinataStore) Put(ctx context.Context, data []byte, nameHint string) (string, error) {
	var out pinResponse
	resp, err := s.api.R().
		SetContext(ctx).
		SetFileReader("file", nameHint, bytes.NewReader(data)).
		SetFormData(map[string]string{
			"pinataMetadata": fmt.Sprintf(`{"name":%q}`, nameHint),
		}).
		SetResult(&out).
		Post("/pinning/pinFileToIPFS")
	if err != nil {
		return "", fmt.Errorf("pin content: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("pin content: status %d: %s", resp.StatusCode(), resp.String())
	}
	if err := ValidateContentID(out.IpfsHash); err != nil {
		return "", fmt.Errorf("pinning service returned %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"content_id": out.IpfsHash,
		"size":       len(data),
		"name":       nameHint,
	}).Debug("content pinned")

	return out.IpfsHash, nil
}

// Get fetches the bytes behind contentID from the gateway.
func (s *PinataStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	if err := ValidateContentID(contentID); err != nil {
		return nil, ErrNotFound
	}

	resp, err := s.gateway.R().
		SetContext(ctx).
		SetDoNotParseResponse(false).
		Get("/ipfs/" + contentID)
	if err != nil {
		return nil, fmt.Errorf("fetch content %s: %w", contentID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch content %s: status %d", contentID, resp.StatusCode())
	}
	return resp.Body(), nil
}
