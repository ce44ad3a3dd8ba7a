package requests

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/status-im/connector-txqueue/transactions"
)

type Kind string

const (
	KindConnect          Kind = "connect"
	KindSendTransaction  Kind = "send-transaction"
	KindSendBatchedCalls Kind = "send-batched-calls"
	KindSignTypedData    Kind = "sign-typed-data"
	KindPersonalSign     Kind = "personal-sign"
	KindSwitchChain      Kind = "switch-chain"
	KindSubmitOrder      Kind = "submit-order"
)

// Origin identifies the tab and site a request came from.
type Origin struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

// Payload is the kind specific part of an ExternalRequest. The set of
// payloads is closed: only types of this package implement it.
type Payload interface {
	Kind() Kind
	Validate() error
	payload()
}

// ExternalRequest is a request emitted by a connected site.
type ExternalRequest struct {
	RequestID string  `json:"requestId"`
	Origin    Origin  `json:"origin"`
	ChainID   *uint64 `json:"chainId,omitempty"`
	DAppName  string  `json:"dAppName,omitempty"`
	IconURL   string  `json:"iconUrl,omitempty"`
	Payload   Payload `json:"-"`
}

func (r ExternalRequest) Kind() Kind {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// ChainIDOrZero returns the requested chain, 0 if the request did not name one.
func (r ExternalRequest) ChainIDOrZero() uint64 {
	if r.ChainID == nil {
		return 0
	}
	return *r.ChainID
}

func (r ExternalRequest) Validate() error {
	if r.RequestID == "" {
		return ErrMissingRequestID
	}
	if r.Origin.URL == "" {
		return ErrRequestMissingDAppData
	}
	if r.Payload == nil {
		return ErrUnsupportedRequestKind
	}
	return r.Payload.Validate()
}

type ConnectPayload struct {
	// Account is the account the user chose to share. It is set on approval.
	Account common.Address `json:"account"`
}

func (ConnectPayload) Kind() Kind      { return KindConnect }
func (ConnectPayload) Validate() error { return nil }
func (ConnectPayload) payload()        {}

type SendTransactionPayload struct {
	TxArgs  transactions.SendTxArgs        `json:"txArgs"`
	Channel transactions.SubmissionChannel `json:"channel,omitempty"`
}

func (SendTransactionPayload) Kind() Kind { return KindSendTransaction }
func (SendTransactionPayload) payload()   {}

func (p SendTransactionPayload) Validate() error {
	if !p.TxArgs.Valid() {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("invalid transaction arguments"))
	}
	return nil
}

// Call is a single call of a batch.
type Call struct {
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

type SendBatchedCallsPayload struct {
	From  common.Address `json:"from"`
	Calls []Call         `json:"calls"`
}

func (SendBatchedCallsPayload) Kind() Kind { return KindSendBatchedCalls }
func (SendBatchedCallsPayload) payload()   {}

func (p SendBatchedCallsPayload) Validate() error {
	if p.From == (common.Address{}) {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("missing sender"))
	}
	if len(p.Calls) == 0 {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("empty batch"))
	}
	for i, call := range p.Calls {
		if call.To == nil {
			return ErrInvalidRPCParams.WithCause(fmt.Errorf("call %d has no recipient", i))
		}
	}
	return nil
}

type SignTypedDataPayload struct {
	Address   common.Address     `json:"address"`
	TypedData apitypes.TypedData `json:"typedData"`
}

func (SignTypedDataPayload) Kind() Kind { return KindSignTypedData }
func (SignTypedDataPayload) payload()   {}

func (p SignTypedDataPayload) Validate() error {
	if p.Address == (common.Address{}) {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("missing address"))
	}
	if p.TypedData.PrimaryType == "" {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("missing primary type"))
	}
	return nil
}

type PersonalSignPayload struct {
	Address common.Address `json:"address"`
	Message hexutil.Bytes  `json:"message"`
}

func (PersonalSignPayload) Kind() Kind { return KindPersonalSign }
func (PersonalSignPayload) payload()   {}

func (p PersonalSignPayload) Validate() error {
	if p.Address == (common.Address{}) {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("missing address"))
	}
	return nil
}

type SwitchChainPayload struct {
	ChainID uint64 `json:"chainId"`
}

func (SwitchChainPayload) Kind() Kind { return KindSwitchChain }
func (SwitchChainPayload) payload()   {}

func (p SwitchChainPayload) Validate() error {
	if p.ChainID == 0 {
		return ErrNoChainIDInParams
	}
	return nil
}

// SubmitOrderPayload is an order signed by the wallet and settled off-chain.
type SubmitOrderPayload struct {
	From         common.Address `json:"from"`
	EncodedOrder hexutil.Bytes  `json:"encodedOrder"`
	QuoteID      string         `json:"quoteId"`
}

func (SubmitOrderPayload) Kind() Kind { return KindSubmitOrder }
func (SubmitOrderPayload) payload()   {}

func (p SubmitOrderPayload) Validate() error {
	if p.From == (common.Address{}) {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("missing sender"))
	}
	if len(p.EncodedOrder) == 0 || p.QuoteID == "" {
		return ErrInvalidRPCParams.WithCause(fmt.Errorf("missing order or quote"))
	}
	return nil
}

func newPayload(kind Kind) (Payload, error) {
	switch kind {
	case KindConnect:
		return &ConnectPayload{}, nil
	case KindSendTransaction:
		return &SendTransactionPayload{}, nil
	case KindSendBatchedCalls:
		return &SendBatchedCallsPayload{}, nil
	case KindSignTypedData:
		return &SignTypedDataPayload{}, nil
	case KindPersonalSign:
		return &PersonalSignPayload{}, nil
	case KindSwitchChain:
		return &SwitchChainPayload{}, nil
	case KindSubmitOrder:
		return &SubmitOrderPayload{}, nil
	default:
		return nil, ErrUnsupportedRequestKind.WithCause(fmt.Errorf("kind %q", kind))
	}
}

// deref turns the pointer returned by newPayload back into a value payload.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *ConnectPayload:
		return *v
	case *SendTransactionPayload:
		return *v
	case *SendBatchedCallsPayload:
		return *v
	case *SignTypedDataPayload:
		return *v
	case *PersonalSignPayload:
		return *v
	case *SwitchChainPayload:
		return *v
	case *SubmitOrderPayload:
		return *v
	}
	return p
}

func (r ExternalRequest) MarshalJSON() ([]byte, error) {
	type plain ExternalRequest
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		plain
		Kind    Kind            `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	}{plain(r), r.Kind(), payload})
}

func (r *ExternalRequest) UnmarshalJSON(data []byte) error {
	type plain ExternalRequest
	var aux struct {
		plain
		Kind    Kind            `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p, err := newPayload(aux.Kind)
	if err != nil {
		return err
	}
	if len(aux.Payload) > 0 && string(aux.Payload) != "null" {
		if err := json.Unmarshal(aux.Payload, p); err != nil {
			return ErrInvalidRPCParams.WithCause(err)
		}
	}
	*r = ExternalRequest(aux.plain)
	r.Payload = deref(p)
	return nil
}
