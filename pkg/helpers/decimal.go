package helpers

import (
	"fmt"
	"math/big"
)

// FormatDecimal renders an arbitrary-precision smallest-unit amount as the
// decimal string chain B's HTLC contract expects (e.g. NEAR's yoctoNEAR
// amounts).
func FormatDecimal(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// ParseDecimal parses a decimal string into an arbitrary-precision integer,
// rejecting anything that is not a non-negative base-10 integer literal —
// chain B amounts carry no fractional point or fixed-decimals convention.
func ParseDecimal(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty decimal amount")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount: %s", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount not allowed: %s", s)
	}
	return n, nil
}
