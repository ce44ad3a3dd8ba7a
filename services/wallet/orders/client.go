package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/circuitbreaker"
	"github.com/status-im/connector-txqueue/services/wallet/thirdparty"
)

// Client talks to the order API, falling back to the next endpoint when one
// is failing.
type Client struct {
	httpClient *thirdparty.HTTPClient
	endpoints  []string
	creds      *thirdparty.BasicCreds
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(endpoints []string, creds *thirdparty.BasicCreds, config circuitbreaker.Config) *Client {
	trimmed := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e != "" {
			trimmed = append(trimmed, strings.TrimRight(e, "/"))
		}
	}
	return &Client{
		httpClient: thirdparty.NewHTTPClient(),
		endpoints:  trimmed,
		creds:      creds,
		cb:         circuitbreaker.NewCircuitBreaker(config),
	}
}

type requestFunc func(ctx context.Context, baseURL string) ([]byte, error)

// execute runs do against each endpoint in turn. Client errors (4xx) are
// answers of a healthy API and are returned without trying other endpoints.
func (c *Client) execute(ctx context.Context, do requestFunc) ([]byte, error) {
	if len(c.endpoints) == 0 {
		return nil, ErrOrderAPIUnavailable.WithCause(errors.New("no endpoints configured"))
	}

	cmd := circuitbreaker.NewCommand(ctx, nil)
	for _, endpoint := range c.endpoints {
		baseURL := endpoint
		cmd.Add(circuitbreaker.NewFunctor(func(ctx context.Context) ([]any, error) {
			body, err := do(ctx, baseURL)
			var statusErr *thirdparty.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
				return []any{nil, statusErr}, nil
			}
			if err != nil {
				return nil, err
			}
			return []any{body, nil}, nil
		}, "orderAPI_"+baseURL))
	}

	result := c.cb.Execute(cmd)
	if result.Error() != nil {
		return nil, ErrOrderAPIUnavailable.WithCause(result.Error())
	}
	res := result.Result()
	if statusErr, _ := res[1].(*thirdparty.StatusError); statusErr != nil {
		if statusErr.StatusCode == http.StatusNotFound {
			return nil, ErrOrderNotFound.WithCause(statusErr)
		}
		return nil, ErrOrderRejected.WithCause(statusErr)
	}
	return res[0].([]byte), nil
}

func (c *Client) FetchLatestOpenOrder(ctx context.Context, owner common.Address, chainID uint64) (*OrdersResponse, error) {
	params := url.Values{}
	params.Set("owner", owner.Hex())
	body, err := c.execute(ctx, func(ctx context.Context, baseURL string) ([]byte, error) {
		return c.httpClient.DoGetRequest(ctx, fmt.Sprintf("%s/%d/orders/latest-open", baseURL, chainID), params, c.creds)
	})
	if err != nil {
		return nil, err
	}

	var response OrdersResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, ErrInvalidOrderResponse.WithCause(err)
	}
	return &response, nil
}

func (c *Client) GetOrder(ctx context.Context, chainID uint64, orderHash string) (*Order, error) {
	body, err := c.execute(ctx, func(ctx context.Context, baseURL string) ([]byte, error) {
		return c.httpClient.DoGetRequest(ctx, fmt.Sprintf("%s/%d/orders/%s", baseURL, chainID, url.PathEscape(orderHash)), nil, c.creds)
	})
	if err != nil {
		return nil, err
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, ErrInvalidOrderResponse.WithCause(err)
	}
	return &order, nil
}

func (c *Client) SubmitOrder(ctx context.Context, chainID uint64, req SubmitRequest) (*SubmitResponse, error) {
	body, err := c.execute(ctx, func(ctx context.Context, baseURL string) ([]byte, error) {
		return c.httpClient.DoPostRequest(ctx, fmt.Sprintf("%s/%d/orders", baseURL, chainID), req, c.creds)
	})
	if err != nil {
		return nil, err
	}

	var response SubmitResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, ErrInvalidOrderResponse.WithCause(err)
	}
	if response.OrderHash == "" {
		return nil, ErrInvalidOrderResponse.WithCause(errors.New("missing order hash"))
	}
	return &response, nil
}
