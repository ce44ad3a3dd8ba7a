package thirdparty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const requestTimeout = 20 * time.Second

type BasicCreds struct {
	User     string
	Password string
}

// StatusError is returned for responses outside of the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *HTTPClient) DoGetRequest(ctx context.Context, url string, params url.Values, creds *BasicCreds) ([]byte, error) {
	if len(params) > 0 {
		url = url + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, creds)
}

func (c *HTTPClient) DoPostRequest(ctx context.Context, url string, params interface{}, creds *BasicCreds) ([]byte, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, creds)
}

func (c *HTTPClient) do(req *http.Request, creds *BasicCreds) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if creds != nil {
		req.SetBasicAuth(creds.User, creds.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
