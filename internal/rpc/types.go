package rpc

import (
	"encoding/json"
)

const Version = "2.0"

// Request is an EIP-1193 call as it arrives from a page.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries exactly one of Result or Error. Result is "null" for
// methods without a value.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewRequest builds a request with positional params.
func NewRequest(id json.RawMessage, method string, params ...any) (Request, error) {
	req := Request{JSONRPC: Version, ID: id, Method: method}
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return Request{}, err
		}
		req.Params = b
	}
	return req, nil
}

func errorResponse(id json.RawMessage, e *Error) Response {
	return Response{JSONRPC: Version, ID: id, Error: e}
}

// TokenBalance is the eth_getTokenBalance result.
type TokenBalance struct {
	Owner     string `json:"owner"`
	Token     string `json:"token"`
	Balance   string `json:"balance"` // hex quantity, raw units
	Formatted string `json:"formatted"`
	Symbol    string `json:"symbol,omitempty"`
	Decimals  uint8  `json:"decimals"`
}

// ImportedWallet is the wallet_importMnemonic result.
type ImportedWallet struct {
	ID       string   `json:"id"`
	Accounts []string `json:"accounts"`
}

// Permission follows EIP-2255.
type Permission struct {
	Invoker          string   `json:"invoker"`
	ParentCapability string   `json:"parentCapability"`
	Caveats          []Caveat `json:"caveats"`
	Date             int64    `json:"date"`
}

type Caveat struct {
	Type  string   `json:"type"`
	Value []string `json:"value"`
}
