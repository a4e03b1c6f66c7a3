// Package units converts between on-chain integer amounts and the decimal
// strings wallets show and accept.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const EtherDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

// ParseValue accepts a 0x-prefixed hex wei quantity or a decimal ether amount
// and returns wei. An empty string is zero.
func ParseValue(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if s == "0x" || s == "0X" {
			return new(big.Int), nil
		}
		v, err := hexutil.DecodeBig(strings.ToLower(trimHexZeros(s)))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
		}
		return v, nil
	}
	return ParseUnits(s, EtherDecimals)
}

// ParseUnits parses a decimal string into an integer scaled by 10^decimals.
// More fractional digits than decimals is an error, not a rounding.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: negative %q", ErrInvalidAmount, s)
	}
	s = strings.TrimPrefix(s, "+")

	intPart, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") || (intPart == "" && frac == "") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !isDigits(intPart) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}

	digits := intPart + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(big.Int), nil
	}

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// FormatUnits renders v scaled down by 10^decimals, keeping at most maxFrac
// fractional digits and trimming trailing zeros.
func FormatUnits(v *big.Int, decimals uint8, maxFrac int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}

	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()

	d := int(decimals)
	var intPart, frac string
	if len(digits) <= d {
		intPart = "0"
		frac = strings.Repeat("0", d-len(digits)) + digits
	} else {
		intPart = digits[:len(digits)-d]
		frac = digits[len(digits)-d:]
	}

	frac = trimFrac(frac, maxFrac)

	out := intPart
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ToHexQuantity renders v as an Ethereum JSON-RPC quantity.
func ToHexQuantity(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

func trimFrac(frac string, maxDecimals int) string {
	if maxDecimals <= 0 {
		return ""
	}
	if len(frac) > maxDecimals {
		frac = frac[:maxDecimals]
	}
	return strings.TrimRight(frac, "0")
}

// hexutil rejects leading zeros ("0x01"); wallets do not.
func trimHexZeros(s string) string {
	body := strings.TrimLeft(s[2:], "0")
	if body == "" {
		body = "0"
	}
	return "0x" + body
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
