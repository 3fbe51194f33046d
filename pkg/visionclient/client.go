/**
 * @description
 * This package provides a client for the external receipt-recognition API.
 * It encapsulates the logic for making authenticated HTTP requests to the
 * provider's extraction endpoint, handling request body construction, and
 * parsing responses.
 *
 * The provider is best-effort: every extracted field is optional, and an
 * outage or non-2xx response surfaces as ErrRecognitionUnavailable so callers
 * can leave the verification pending for a later retry rather than reject it.
 *
 * @dependencies
 * - bytes, context, encoding/base64, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: The Extraction result type.
 */
package visionclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

// ErrRecognitionUnavailable indicates the provider could not be reached or
// returned a server-side failure. It is a transient condition, not a verdict
// about the receipt.
var ErrRecognitionUnavailable = errors.New("receipt recognition unavailable")

// Client is a client for the receipt-recognition API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new recognition API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// extractRequest represents the payload for the provider's extraction endpoint.
type extractRequest struct {
	Document struct {
		Content   string `json:"content"` // base64-encoded image bytes
		MediaType string `json:"media_type"`
	} `json:"document"`
	Fields []string `json:"fields"`
}

// extractResponse is the expected response from the extraction endpoint.
type extractResponse struct {
	Result struct {
		Date         *string `json:"date,omitempty"`
		Time         *string `json:"time,omitempty"`
		Amount       *string `json:"amount,omitempty"`
		MerchantName *string `json:"merchant_name,omitempty"`
	} `json:"result"`
}

// ErrorResponse represents an error from the recognition API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("recognition api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown recognition api error"
}

// Extract submits a receipt image and returns the fields the provider could
// read. A nil pointer inside the result means the provider could not read that
// field; only transport and server failures return an error.
func (c *Client) Extract(ctx context.Context, image []byte, mediaType string) (*domain.Extraction, error) {
	reqPayload := extractRequest{}
	reqPayload.Document.Content = base64.StdEncoding.EncodeToString(image)
	reqPayload.Document.MediaType = mediaType
	reqPayload.Fields = []string{"date", "time", "amount", "merchant_name"}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/receipts/extract", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("level=warn component=vision_client op=extract msg=\"request failed\" error=%q", err)
		return nil, fmt.Errorf("%w: %v", ErrRecognitionUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=vision_client op=extract status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("%w: status %d", ErrRecognitionUnavailable, resp.StatusCode)
		}
		log.Printf("level=warn component=vision_client op=extract status=%d title=%q detail=%q", resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return nil, fmt.Errorf("%w: %v", ErrRecognitionUnavailable, &errResp)
	}

	var successResp extractResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	return &domain.Extraction{
		Date:         successResp.Result.Date,
		Time:         successResp.Result.Time,
		Amount:       successResp.Result.Amount,
		MerchantName: successResp.Result.MerchantName,
	}, nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
