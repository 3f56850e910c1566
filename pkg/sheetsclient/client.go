/**
 * @description
 * This package provides a client for the spreadsheet row service that backs the
 * clinic's "database". Each logical table (ledger, orders, patients,
 * appointments) is a tab in one spreadsheet, addressed by sheet name. The
 * client encapsulates authenticated HTTP requests, request body construction,
 * and response parsing.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package sheetsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Row is one spreadsheet row, keyed by column header.
type Row map[string]string

// Client is a client for the spreadsheet row service.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new spreadsheet service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RowsResponse is the payload returned when reading a sheet.
type RowsResponse struct {
	Rows        []Row `json:"rows"`
	RowCount    int   `json:"row_count"`
	ColumnCount int   `json:"column_count"`
}

// AppendResponse is the payload returned after appending a row.
type AppendResponse struct {
	Row Row `json:"row"`
}

// UpdateResponse reports how many rows a patch matched.
type UpdateResponse struct {
	Updated int `json:"updated"`
}

// ErrorResponse represents an error from the spreadsheet service.
type ErrorResponse struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("sheets api error (status %d): %s", e.Status, e.Message)
}

// Rows fetches every row of the named sheet along with row/column counts.
func (c *Client) Rows(ctx context.Context, sheet string) (*RowsResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/rows?sheet=%s", c.BaseURL, url.QueryEscape(sheet))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows request: %w", err)
	}

	var resp RowsResponse
	if err := c.do(req, "rows", sheet, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Append adds one row to the end of the named sheet.
func (c *Client) Append(ctx context.Context, sheet string, row Row) (*AppendResponse, error) {
	body, err := json.Marshal(map[string]Row{"row": row})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal append request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/rows?sheet=%s", c.BaseURL, url.QueryEscape(sheet))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create append request: %w", err)
	}

	var resp AppendResponse
	if err := c.do(req, "append", sheet, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Update patches every row of the named sheet whose column equals value and
// returns the number of rows touched. The service matches on exact cell text.
func (c *Client) Update(ctx context.Context, sheet, column, value string, patch Row) (*UpdateResponse, error) {
	body, err := json.Marshal(map[string]Row{"row": patch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/rows/%s/%s?sheet=%s",
		c.BaseURL, url.PathEscape(column), url.PathEscape(value), url.QueryEscape(sheet))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create update request: %w", err)
	}

	var resp UpdateResponse
	if err := c.do(req, "update", sheet, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes a prepared request and decodes the JSON response into out.
func (c *Client) do(req *http.Request, op, sheet string, out interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := ErrorResponse{Status: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Message == "" {
			log.Printf("level=warn component=sheets_client op=%s sheet=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, sheet, resp.StatusCode)
			return fmt.Errorf("sheets api returned status %d", resp.StatusCode)
		}
		log.Printf("level=warn component=sheets_client op=%s sheet=%s status=%d error=%q", op, sheet, resp.StatusCode, errResp.Message)
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
