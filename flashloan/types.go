package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ArbitrageCall contains the parameters of one flash-loan arbitrage entry call
type ArbitrageCall struct {
	Target    common.Address // Arbitrage contract that draws and repays the loan
	Amount    *big.Int       // Flash-loan draw amount in wei
	Recipient common.Address // Receiver of the realized profit
}
