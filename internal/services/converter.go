// Client for the third-party "catalog URL to audio" conversion provider.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/time/rate"
)

// ConverterService calls the conversion provider and downloads the audio it produces.
//
// Requests share a token-bucket limiter sized to the provider's quota. Nothing is retried here;
// callers re-run the whole acquisition instead.
type ConverterService struct {
	baseURL    string
	apiKey     string
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewConverterService creates a converter from config. A nil client gets one with the configured timeout.
func NewConverterService(cfg shared.ConverterConfig, client *http.Client) *ConverterService {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &ConverterService{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		host:       cfg.Host,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Convert asks the provider to convert the track at catalogURL.
//
// Transport errors and non-200 responses wrap [shared.ErrProviderUnavailable]; success=false or a
// missing download link wraps [shared.ErrProviderNoResult].
func (c *ConverterService) Convert(ctx context.Context, catalogURL string) (*models.ConversionData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProviderUnavailable, err)
	}

	endpoint := c.baseURL + "/convert?ref=" + url.QueryEscape(catalogURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
	if c.host != "" {
		req.Header.Set("X-RapidAPI-Host", c.host)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", shared.ErrProviderUnavailable, resp.StatusCode)
	}

	var conversion models.Conversion
	if err := json.NewDecoder(resp.Body).Decode(&conversion); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", shared.ErrProviderUnavailable, err)
	}

	if !conversion.Success || conversion.Data == nil || conversion.Data.DownloadLink == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrProviderNoResult, catalogURL)
	}
	return conversion.Data, nil
}

// Download fetches the whole payload at link into memory along with its content type.
// Non-2xx responses and transport errors wrap [shared.ErrTransferFailed].
func (c *ConverterService) Download(ctx context.Context, link string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrTransferFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d", shared.ErrTransferFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", shared.ErrTransferFailed, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "audio/mpeg"
	}
	return data, contentType, nil
}
