package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// EtherToWei converts a decimal ETH amount such as "0.08" to wei.
// Digits beyond wei precision are truncated.
func EtherToWei(amount string) (*big.Int, error) {
	return decimalToUnit(amount, params.Ether)
}

// GweiToWei converts a decimal gwei amount to wei
func GweiToWei(amount string) (*big.Int, error) {
	return decimalToUnit(amount, params.GWei)
}

// WeiToEther formats a wei amount as a decimal ETH string
func WeiToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether))
	s := r.FloatString(18)
	s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	if s == "" {
		return "0"
	}
	return s
}

func decimalToUnit(amount string, unit int64) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	r.Mul(r, new(big.Rat).SetInt64(unit))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}
