package rewards

import "math/big"

const (
	// BasisPointsDenominator scales fee rates expressed in basis points.
	BasisPointsDenominator = 10_000
	// MaxProtocolFeeBps caps the claim-path fee at 5%.
	MaxProtocolFeeBps = 500
	// MaxCancellationFeeBps caps the cancel-path fee at 10%.
	MaxCancellationFeeBps = 1_000
)

var bpsDenominator = big.NewInt(BasisPointsDenominator)

// SplitFee divides amount into a fee and a net payout for the given rate in
// basis points. The fee is floor(amount*rate/10000); fee+net always equals
// amount exactly.
func SplitFee(amount *big.Int, rateBps uint32) (fee, net *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(rateBps)))
	fee.Div(fee, bpsDenominator)
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}
