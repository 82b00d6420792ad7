package flashloan

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const methodExecuteArbitrage = "executeArbitrage"

// Minimal ABI of the arbitrage contract entry point. The contract borrows
// amount, runs its swaps, repays the loan and sends the remainder to
// profitRecipient.
const arbitrageABI = `[
	{
		"inputs": [
			{
				"internalType": "uint256",
				"name": "amount",
				"type": "uint256"
			},
			{
				"internalType": "address",
				"name": "profitRecipient",
				"type": "address"
			}
		],
		"name": "executeArbitrage",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// Encoder packs arbitrage call payloads
type Encoder struct {
	abi abi.ABI
}

// NewEncoder parses the arbitrage contract ABI
func NewEncoder() (*Encoder, error) {
	parsedABI, err := abi.JSON(strings.NewReader(arbitrageABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &Encoder{abi: parsedABI}, nil
}

// EncodeArbitrage returns the call data for call
func (e *Encoder) EncodeArbitrage(call ArbitrageCall) ([]byte, error) {
	if call.Target == (common.Address{}) {
		return nil, fmt.Errorf("arbitrage target cannot be the zero address")
	}
	if call.Amount == nil || call.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid loan amount")
	}

	data, err := e.abi.Pack(methodExecuteArbitrage, call.Amount, call.Recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to pack arbitrage data: %w", err)
	}
	return data, nil
}

// DecodeArbitrage unpacks call data produced by EncodeArbitrage
func (e *Encoder) DecodeArbitrage(data []byte) (*big.Int, common.Address, error) {
	method, err := e.abi.MethodById(data)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("unknown method: %w", err)
	}
	if method.Name != methodExecuteArbitrage {
		return nil, common.Address{}, fmt.Errorf("unexpected method %s", method.Name)
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to unpack arbitrage data: %w", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("unexpected amount type %T", values[0])
	}
	recipient, ok := values[1].(common.Address)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("unexpected recipient type %T", values[1])
	}
	return amount, recipient, nil
}
