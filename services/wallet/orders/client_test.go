package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/circuitbreaker"
	"github.com/status-im/connector-txqueue/services/wallet/thirdparty"
)

func newOrderServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFallsBackToSecondEndpoint(t *testing.T) {
	main := newOrderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	fallback := newOrderServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/10/orders/latest-open", r.URL.Path)
		require.Equal(t, owner.Hex(), r.URL.Query().Get("owner"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "user", user)
		require.Equal(t, "secret", pass)
		_ = json.NewEncoder(w).Encode(OrdersResponse{Orders: []Order{{OrderHash: orderHash, Status: OrderStatusOpen, ChainID: 10}}})
	})

	client := NewClient([]string{main.URL + "/", fallback.URL}, &thirdparty.BasicCreds{User: "user", Password: "secret"}, circuitbreaker.Config{})
	resp, err := client.FetchLatestOpenOrder(context.Background(), owner, 10)
	require.NoError(t, err)
	require.Len(t, resp.Orders, 1)
	require.Equal(t, orderHash, resp.Orders[0].OrderHash)
}

func TestClientMapsClientErrors(t *testing.T) {
	calls := 0
	main := newOrderServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	fallback := newOrderServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("fallback must not be called for client errors")
	})

	client := NewClient([]string{main.URL, fallback.URL}, nil, circuitbreaker.Config{})
	_, err := client.GetOrder(context.Background(), 1, orderHash)
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = client.SubmitOrder(context.Background(), 1, SubmitRequest{QuoteID: "q"})
	require.ErrorIs(t, err, ErrOrderRejected)
	require.Equal(t, 2, calls)
}

func TestClientUnavailable(t *testing.T) {
	down := newOrderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := NewClient([]string{down.URL}, nil, circuitbreaker.Config{})
	_, err := client.GetOrder(context.Background(), 1, orderHash)
	require.ErrorIs(t, err, ErrOrderAPIUnavailable)

	_, err = NewClient(nil, nil, circuitbreaker.Config{}).GetOrder(context.Background(), 1, orderHash)
	require.ErrorIs(t, err, ErrOrderAPIUnavailable)
}

func TestClientSubmitOrder(t *testing.T) {
	srv := newOrderServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/1/orders", r.URL.Path)
		var req SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "quote-1", req.QuoteID)
		require.Equal(t, []byte{0xde, 0xad}, []byte(req.Signature))
		_ = json.NewEncoder(w).Encode(SubmitResponse{OrderHash: orderHash})
	})

	client := NewClient([]string{srv.URL}, nil, circuitbreaker.Config{})
	resp, err := client.SubmitOrder(context.Background(), 1, SubmitRequest{
		EncodedOrder: common.FromHex("0x01"),
		Signature:    []byte{0xde, 0xad},
		QuoteID:      "quote-1",
	})
	require.NoError(t, err)
	require.Equal(t, orderHash, resp.OrderHash)
}

func TestClientInvalidResponse(t *testing.T) {
	srv := newOrderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	client := NewClient([]string{srv.URL}, nil, circuitbreaker.Config{})
	_, err := client.GetOrder(context.Background(), 1, orderHash)
	require.ErrorIs(t, err, ErrInvalidOrderResponse)
}
