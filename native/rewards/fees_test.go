package rewards

import (
	"math/big"
	"testing"
)

func TestSplitFeeExactness(t *testing.T) {
	cases := []struct {
		name    string
		amount  *big.Int
		rateBps uint32
		fee     string
		net     string
	}{
		{"fifty bp", big.NewInt(5_000_000), 50, "25000", "4975000"},
		{"one percent", big.NewInt(5_000_000), 100, "50000", "4950000"},
		{"zero rate", big.NewInt(5_000_000), 0, "0", "5000000"},
		{"floors remainder", big.NewInt(999), 50, "4", "995"},
		{"one unit", big.NewInt(1), 500, "0", "1"},
		{"max cancellation", big.NewInt(12_345), 1_000, "1234", "11111"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, net := SplitFee(tc.amount, tc.rateBps)
			if fee.String() != tc.fee {
				t.Fatalf("fee = %s, want %s", fee, tc.fee)
			}
			if net.String() != tc.net {
				t.Fatalf("net = %s, want %s", net, tc.net)
			}
			if new(big.Int).Add(fee, net).Cmp(tc.amount) != 0 {
				t.Fatalf("fee + net must equal amount exactly")
			}
		})
	}
}

func TestSplitFeeLargeAmounts(t *testing.T) {
	amount, ok := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	if !ok {
		t.Fatal("parse amount")
	}
	fee, net := SplitFee(amount, MaxProtocolFeeBps)
	if new(big.Int).Add(fee, net).Cmp(amount) != 0 {
		t.Fatalf("fee + net must equal amount for large values")
	}
	if fee.Cmp(amount) >= 0 {
		t.Fatalf("fee must not exceed amount")
	}
}

func TestSplitFeeDegenerateInputs(t *testing.T) {
	fee, net := SplitFee(nil, 50)
	if fee.Sign() != 0 || net.Sign() != 0 {
		t.Fatalf("nil amount must split to zero")
	}
	fee, net = SplitFee(big.NewInt(-5), 50)
	if fee.Sign() != 0 || net.Sign() != 0 {
		t.Fatalf("negative amount must split to zero")
	}
}

func TestParamsValidate(t *testing.T) {
	params := DefaultParams()
	if err := params.Validate(); err != nil {
		t.Fatalf("default params must validate, got %v", err)
	}
	params.ProtocolFeeBps = MaxProtocolFeeBps + 1
	if err := params.Validate(); err == nil {
		t.Fatal("protocol fee above cap must fail validation")
	}
	params = DefaultParams()
	params.CancellationFeeBps = MaxCancellationFeeBps + 1
	if err := params.Validate(); err == nil {
		t.Fatal("cancellation fee above cap must fail validation")
	}
	params = DefaultParams()
	params.MaxExpirySeconds = MinExpirySeconds - 1
	if err := params.Validate(); err == nil {
		t.Fatal("max expiry below the claim window must fail validation")
	}
	params = DefaultParams()
	params.MinRewardAmount = big.NewInt(0)
	if err := params.Validate(); err == nil {
		t.Fatal("zero minimum amount must fail validation")
	}
}
