package pricing

import (
	"math/big"
	"testing"

	"github.com/learnledger/backend/internal/errors"
)

func TestParseFiatAmount(t *testing.T) {
	valid := []string{"499", "499.99", "0.01", " 100 ", "1250.5"}
	for _, input := range valid {
		if _, err := ParseFiatAmount(input); err != nil {
			t.Errorf("ParseFiatAmount(%q) unexpected error: %v", input, err)
		}
	}

	invalid := []string{"", "0", "-5", "+5", "1e3", "abc", "12.3.4", "1234567890123"}
	for _, input := range invalid {
		_, err := ParseFiatAmount(input)
		if err == nil {
			t.Errorf("ParseFiatAmount(%q) expected error", input)
			continue
		}
		if !errors.IsCode(err, errors.CodeValidationFailed) {
			t.Errorf("ParseFiatAmount(%q) expected validation error, got %v", input, err)
		}
	}
}

func TestToWeiDeterministic(t *testing.T) {
	fiat, err := ParseFiatAmount("499.99")
	if err != nil {
		t.Fatalf("parse fiat: %v", err)
	}
	price := new(big.Rat).SetInt64(2500) // 2500 fiat units per coin
	rate, err := RateFromCoinPrice(price)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}

	first := ToWei(fiat, rate)
	for i := 0; i < 100; i++ {
		if got := ToWei(fiat, rate); got.Cmp(first) != 0 {
			t.Fatalf("conversion not deterministic: %s vs %s", got, first)
		}
	}

	// 499.99 / 2500 coins = 0.199996 coin = 199996000000000000 wei, exact.
	want, _ := new(big.Int).SetString("199996000000000000", 10)
	if first.Cmp(want) != 0 {
		t.Fatalf("ToWei = %s, want %s", first, want)
	}
}

func TestToWeiFloors(t *testing.T) {
	// 1 fiat at 3 fiat/coin is a repeating fraction of wei; the result must
	// be the floor, never rounded up.
	fiat := new(big.Rat).SetInt64(1)
	rate, err := RateFromCoinPrice(new(big.Rat).SetInt64(3))
	if err != nil {
		t.Fatalf("rate: %v", err)
	}

	got := ToWei(fiat, rate)
	want, _ := new(big.Int).SetString("333333333333333333", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("ToWei = %s, want floor %s", got, want)
	}
}

func TestRateFromCoinPriceRejectsNonPositive(t *testing.T) {
	for _, price := range []*big.Rat{nil, new(big.Rat), new(big.Rat).SetInt64(-10)} {
		if _, err := RateFromCoinPrice(price); err == nil {
			t.Errorf("RateFromCoinPrice(%v) expected error", price)
		}
	}
}

func TestParseCoinAmount(t *testing.T) {
	wei, err := ParseCoinAmount("0.25")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want, _ := new(big.Int).SetString("250000000000000000", 10)
	if wei.Cmp(want) != 0 {
		t.Fatalf("ParseCoinAmount(0.25) = %s, want %s", wei, want)
	}

	for _, input := range []string{"", "-1", "0", "2e5"} {
		if _, err := ParseCoinAmount(input); err == nil {
			t.Errorf("ParseCoinAmount(%q) expected error", input)
		}
	}
}

func TestFormatCoin(t *testing.T) {
	cases := map[string]string{
		"1500000000000000000": "1.5",
		"1000000000000000000": "1",
		"199996000000000000":  "0.199996",
		"0":                   "0",
		"1":                   "0.000000000000000001",
	}
	for weiStr, want := range cases {
		wei, _ := new(big.Int).SetString(weiStr, 10)
		if got := FormatCoin(wei); got != want {
			t.Errorf("FormatCoin(%s) = %q, want %q", weiStr, got, want)
		}
	}
	if got := FormatCoin(nil); got != "0" {
		t.Errorf("FormatCoin(nil) = %q, want 0", got)
	}
}
