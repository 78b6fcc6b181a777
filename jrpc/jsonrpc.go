// Package jrpc implements the client side of the relay's JSON-RPC 2.0
// protocol over a single multiplexed transport: calls matched to responses
// by id, server-pushed notifications fanned out by method name.
package jrpc

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/torusresearch/bijson"
)

// Version is the only jsonrpc field value we speak.
const Version = "2.0"

// ErrNoParams reports a notification that carried no params where the
// subscriber expected a payload.
var ErrNoParams = errors.New("notification carried no params")

// Request is a JSON-RPC 2.0 call or, when ID is nil, a notification.
type Request struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      *uint64            `json:"id,omitempty"`
	Method  string             `json:"method"`
	Params  *bijson.RawMessage `json:"params,omitempty"`
}

// Response carries a result or an error for one request id.
type Response struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      uint64             `json:"id"`
	Result  *bijson.RawMessage `json:"result,omitempty"`
	Error   *RPCError          `json:"error,omitempty"`
}

// RPCError is the protocol-level error object inside a response. It is a
// relay verdict, not a transport failure.
type RPCError struct {
	Code    int                `json:"code"`
	Message string             `json:"message"`
	Data    *bijson.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %v: %v", e.Code, e.Message)
}

// DecodeError reports a notification payload that did not decode into the
// subscriber's type. Only that subscriber sees it, the stream continues.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode %v notification: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewCall builds a request envelope with the given id.
func NewCall(id uint64, method string, params interface{}) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a request envelope without an id, fire and forget.
func NewNotification(method string, params interface{}) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, Method: method, Params: raw}, nil
}

func marshalParams(params interface{}) (*bijson.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := bijson.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("could not marshal params: %w", err)
	}
	raw := bijson.RawMessage(data)
	return &raw, nil
}

// UnmarshalParams decodes the request params.
func (r *Request) UnmarshalParams(dst interface{}) error {
	if r.Params == nil {
		return ErrNoParams
	}
	return bijson.Unmarshal(*r.Params, dst)
}

// UnmarshalResult decodes the response result.
func (r *Response) UnmarshalResult(dst interface{}) error {
	if r.Result == nil {
		return errors.New("response carried no result")
	}
	return bijson.Unmarshal(*r.Result, dst)
}

// Kind discriminates the closed set of envelope shapes the relay may send.
type Kind int

const (
	KindInvalid Kind = iota
	KindResponse
	KindNotification
)

// Classify does a tagged decode of an inbound message by field presence, a
// message is exactly one shape or it is nothing. Responses need a numeric
// id and a result or error, notifications need a method and no id. A
// request with both method and id would be a server-to-client call, which
// is not part of this protocol.
func Classify(raw []byte) Kind {
	method := gjson.GetBytes(raw, "method")
	id := gjson.GetBytes(raw, "id")

	if method.Exists() {
		if id.Exists() {
			return KindInvalid
		}
		return KindNotification
	}

	if !id.Exists() || id.Type != gjson.Number {
		return KindInvalid
	}
	if !gjson.GetBytes(raw, "result").Exists() && !gjson.GetBytes(raw, "error").Exists() {
		return KindInvalid
	}
	return KindResponse
}
