package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/me/opsched/pkg/model"
)

// Client is an HTTP client for the opsched API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates an opsched API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// send performs an HTTP request and returns the raw response body.
func (c *Client) send(method, path, contentType string, body io.Reader) (int, []byte, error) {
	url := c.BaseURL + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.Logger.Debug("HTTP request", "method", method, "url", url)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "bytes", len(respBody))
	return resp.StatusCode, respBody, nil
}

// do performs a request and returns the parsed envelope. An error envelope
// is returned as its *model.APIError.
func (c *Client) do(method, path, contentType string, body io.Reader) (*apiResponse, error) {
	status, respBody, err := c.send(method, path, contentType, body)
	if err != nil {
		return nil, err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", status, err, string(respBody))
	}

	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}

	return &apiResp, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) (*apiResponse, error) {
	return c.do("GET", path, "", nil)
}

// Post performs a POST request with a JSON body. A nil body sends none.
func (c *Client) Post(path string, body any) (*apiResponse, error) {
	if body == nil {
		return c.do("POST", path, "", nil)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.Logger.Debug("HTTP request body", "body", string(data))
	return c.do("POST", path, "application/json", bytes.NewReader(data))
}

// PostRaw performs a POST request with a non-JSON body.
func (c *Client) PostRaw(path, contentType string, body io.Reader) (*apiResponse, error) {
	return c.do("POST", path, contentType, body)
}

// GetRaw performs a GET request for a non-envelope resource such as a CSV
// export.
func (c *Client) GetRaw(path string) ([]byte, error) {
	status, body, err := c.send("GET", path, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		var apiResp apiResponse
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
			return nil, apiResp.Error
		}
		return nil, fmt.Errorf("GET %s: status %d", path, status)
	}
	return body, nil
}

// decode unmarshals the envelope data into v.
func decode(resp *apiResponse, v any) error {
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
