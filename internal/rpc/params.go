package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Call is one request as seen by a handler.
type Call struct {
	Origin string
	Method string
	Params []json.RawMessage
}

// splitParams accepts a positional array, a single object or nothing.
func splitParams(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var out []json.RawMessage
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, invalidParams("params: %v", err)
		}
		return out, nil
	case '{':
		return []json.RawMessage{raw}, nil
	default:
		return nil, invalidParams("params must be an array or object")
	}
}

func (c *Call) arity(min, max int) error {
	n := len(c.Params)
	if n < min || n > max {
		if min == max {
			return invalidParams("%s expects %d params, got %d", c.Method, min, n)
		}
		return invalidParams("%s expects %d to %d params, got %d", c.Method, min, max, n)
	}
	return nil
}

// has reports whether param i is present and not null.
func (c *Call) has(i int) bool {
	return i < len(c.Params) && !bytes.Equal(bytes.TrimSpace(c.Params[i]), []byte("null"))
}

func (c *Call) decode(i int, name string, out any) error {
	if !c.has(i) {
		return invalidParams("missing %s", name)
	}
	if err := json.Unmarshal(c.Params[i], out); err != nil {
		return invalidParams("invalid %s: %v", name, err)
	}
	return nil
}

// string returns param i exactly as sent. Parsers trim their own input;
// messages to sign must keep every byte.
func (c *Call) string(i int, name string) (string, error) {
	var s string
	if err := c.decode(i, name, &s); err != nil {
		return "", err
	}
	return s, nil
}

// optString returns "" when param i is absent.
func (c *Call) optString(i int, name string) (string, error) {
	if !c.has(i) {
		return "", nil
	}
	return c.string(i, name)
}

func (c *Call) address(i int, name string) (common.Address, error) {
	s, err := c.string(i, name)
	if err != nil {
		return common.Address{}, err
	}
	return parseAddress(s, name)
}

func parseAddress(s, name string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, invalidParams("invalid %s %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseAddressPtr(s, name string) (*common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	addr, err := parseAddress(s, name)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// parseQuantity accepts 0x hex or plain decimal digits. Empty is nil.
func parseQuantity(s, name string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, nil
	}
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	if !isDigitsIn(digits, base) {
		return nil, invalidParams("invalid %s %q", name, s)
	}
	i, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, invalidParams("invalid %s %q", name, s)
	}
	return i, nil
}

func isDigitsIn(s string, base int) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case base == 16 && (r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F'):
		default:
			return false
		}
	}
	return true
}

func parseHexData(s, name string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, invalidParams("invalid %s: %v", name, err)
	}
	return b, nil
}

// parseSignMessage treats 0x input as bytes and anything else as UTF-8.
func parseSignMessage(msg string) ([]byte, error) {
	m := strings.TrimSpace(msg)
	if strings.HasPrefix(m, "0x") || strings.HasPrefix(m, "0X") {
		return parseHexData(m, "message")
	}
	return []byte(msg), nil
}

// displayMessage renders msg for the approval prompt.
func displayMessage(msg []byte) string {
	if !utf8.Valid(msg) {
		return hexutil.Encode(msg)
	}
	for _, r := range string(msg) {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return hexutil.Encode(msg)
		}
	}
	return string(msg)
}

func addressStrings(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return out
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
