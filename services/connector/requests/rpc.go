package requests

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/status-im/connector-txqueue/transactions"
)

const (
	MethodRequestAccounts     = "eth_requestAccounts"
	MethodSendTransaction     = "eth_sendTransaction"
	MethodSendCalls           = "wallet_sendCalls"
	MethodSignTypedDataV4     = "eth_signTypedData_v4"
	MethodPersonalSign        = "personal_sign"
	MethodSwitchEthereumChain = "wallet_switchEthereumChain"
	MethodSubmitOrder         = "wallet_submitOrder"
)

// RPCRequest is a request as delivered by the browser connector.
type RPCRequest struct {
	JSONRPC   string            `json:"jsonrpc"`
	ID        int               `json:"id"`
	Method    string            `json:"method"`
	Params    []json.RawMessage `json:"params"`
	URL       string            `json:"url"`
	Name      string            `json:"name"`
	IconURL   string            `json:"iconUrl"`
	TabID     int               `json:"tabId"`
	RequestID string            `json:"requestId"`
	ChainID   *hexutil.Uint64   `json:"chainId,omitempty"`
}

func RPCRequestFromJSON(inputJSON string) (RPCRequest, error) {
	var request RPCRequest

	err := json.Unmarshal([]byte(inputJSON), &request)
	if err != nil {
		return RPCRequest{}, ErrInvalidRequestJSON.WithCause(err)
	}
	return request, nil
}

func (r *RPCRequest) Validate() error {
	if r.URL == "" || r.Name == "" {
		return ErrRequestMissingDAppData
	}
	if r.RequestID == "" {
		return ErrMissingRequestID
	}
	return nil
}

func (r *RPCRequest) param(i int, v interface{}) error {
	if len(r.Params) <= i {
		return ErrEmptyRPCParams
	}
	if err := json.Unmarshal(r.Params[i], v); err != nil {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("param %d: %w", i, err))
	}
	return nil
}

// ParseFunc builds the payload of a method from its params. It may set the
// chain of the request when the params carry one.
type ParseFunc func(r *RPCRequest) (Payload, error)

// Registry maps RPC methods to payload parsers.
type Registry struct {
	parsers map[string]ParseFunc
}

func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]ParseFunc),
	}
}

// NewDefaultRegistry knows every method the connector queues.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MethodRequestAccounts, parseConnect)
	r.Register(MethodSendTransaction, parseSendTransaction)
	r.Register(MethodSendCalls, parseSendCalls)
	r.Register(MethodSignTypedDataV4, parseSignTypedData)
	r.Register(MethodPersonalSign, parsePersonalSign)
	r.Register(MethodSwitchEthereumChain, parseSwitchChain)
	r.Register(MethodSubmitOrder, parseSubmitOrder)
	return r
}

func (r *Registry) Register(method string, parse ParseFunc) {
	r.parsers[method] = parse
}

func (r *Registry) GetParser(method string) (ParseFunc, bool) {
	parse, exists := r.parsers[method]
	return parse, exists
}

// FromRPCRequest converts an RPC request into a validated ExternalRequest.
func (r *Registry) FromRPCRequest(request RPCRequest) (ExternalRequest, error) {
	if err := request.Validate(); err != nil {
		return ExternalRequest{}, err
	}
	parse, ok := r.GetParser(request.Method)
	if !ok {
		return ExternalRequest{}, ErrUnsupportedMethod.WithCause(fmt.Errorf("method %q", request.Method))
	}
	payload, err := parse(&request)
	if err != nil {
		return ExternalRequest{}, err
	}

	res := ExternalRequest{
		RequestID: request.RequestID,
		Origin:    Origin{TabID: request.TabID, URL: request.URL},
		DAppName:  request.Name,
		IconURL:   request.IconURL,
		Payload:   payload,
	}
	if request.ChainID != nil {
		chainID := uint64(*request.ChainID)
		res.ChainID = &chainID
	}
	return res, res.Validate()
}

var defaultRegistry = NewDefaultRegistry()

func FromRPCRequest(request RPCRequest) (ExternalRequest, error) {
	return defaultRegistry.FromRPCRequest(request)
}

func parseConnect(r *RPCRequest) (Payload, error) {
	return ConnectPayload{}, nil
}

func parseSendTransaction(r *RPCRequest) (Payload, error) {
	var args transactions.SendTxArgs
	if err := r.param(0, &args); err != nil {
		return nil, err
	}
	return SendTransactionPayload{TxArgs: args}, nil
}

type sendCallsParams struct {
	Version string          `json:"version"`
	ChainID *hexutil.Uint64 `json:"chainId"`
	From    common.Address  `json:"from"`
	Calls   []Call          `json:"calls"`
}

func parseSendCalls(r *RPCRequest) (Payload, error) {
	var params sendCallsParams
	if err := r.param(0, &params); err != nil {
		return nil, err
	}
	if params.ChainID != nil {
		r.ChainID = params.ChainID
	}
	return SendBatchedCallsPayload{From: params.From, Calls: params.Calls}, nil
}

func parseSignTypedData(r *RPCRequest) (Payload, error) {
	var address common.Address
	if err := r.param(0, &address); err != nil {
		return nil, err
	}
	if len(r.Params) < 2 {
		return nil, ErrEmptyRPCParams
	}

	// Sites send the typed data either as an object or as a JSON string.
	raw := []byte(r.Params[1])
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}
	var typedData apitypes.TypedData
	if err := json.Unmarshal(raw, &typedData); err != nil {
		return nil, ErrInvalidRPCParams.WithCause(err)
	}
	return SignTypedDataPayload{Address: address, TypedData: typedData}, nil
}

func parsePersonalSign(r *RPCRequest) (Payload, error) {
	var message hexutil.Bytes
	if err := r.param(0, &message); err != nil {
		return nil, err
	}
	var address common.Address
	if err := r.param(1, &address); err != nil {
		return nil, err
	}
	return PersonalSignPayload{Address: address, Message: message}, nil
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

func parseSwitchChain(r *RPCRequest) (Payload, error) {
	var params switchChainParams
	if err := r.param(0, &params); err != nil {
		return nil, err
	}
	return SwitchChainPayload{ChainID: uint64(params.ChainID)}, nil
}

type submitOrderParams struct {
	SubmitOrderPayload
	ChainID *hexutil.Uint64 `json:"chainId"`
}

func parseSubmitOrder(r *RPCRequest) (Payload, error) {
	var params submitOrderParams
	if err := r.param(0, &params); err != nil {
		return nil, err
	}
	if params.ChainID != nil {
		r.ChainID = params.ChainID
	}
	return params.SubmitOrderPayload, nil
}
