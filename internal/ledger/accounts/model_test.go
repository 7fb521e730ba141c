package accounts

import (
	"errors"
	"testing"

	"github.com/tallybook/tallybook/internal/ledger/shared"
)

func TestNormalBalanceFor(t *testing.T) {
	cases := []struct {
		accountType AccountType
		want        NormalBalance
	}{
		{AccountTypeAsset, NormalBalanceDebit},
		{AccountTypeExpense, NormalBalanceDebit},
		{AccountTypeLiability, NormalBalanceCredit},
		{AccountTypeEquity, NormalBalanceCredit},
		{AccountTypeRevenue, NormalBalanceCredit},
	}
	for _, tc := range cases {
		if got := NormalBalanceFor(tc.accountType); got != tc.want {
			t.Fatalf("NormalBalanceFor(%s) = %s, want %s", tc.accountType, got, tc.want)
		}
	}
}

func TestValidateCode(t *testing.T) {
	valid := []struct {
		code        string
		accountType AccountType
	}{
		{"1000", AccountTypeAsset},
		{"1999", AccountTypeAsset},
		{"2100", AccountTypeLiability},
		{"3000", AccountTypeEquity},
		{"4000", AccountTypeRevenue},
		{"5999", AccountTypeExpense},
	}
	for _, tc := range valid {
		if err := ValidateCode(tc.code, tc.accountType); err != nil {
			t.Fatalf("ValidateCode(%s, %s): %v", tc.code, tc.accountType, err)
		}
	}

	invalid := []struct {
		name        string
		code        string
		accountType AccountType
	}{
		{"too short", "100", AccountTypeAsset},
		{"too long", "10000", AccountTypeAsset},
		{"not numeric", "1a00", AccountTypeAsset},
		{"wrong range for type", "2000", AccountTypeAsset},
		{"expense code for revenue", "5000", AccountTypeRevenue},
		{"unknown type", "1000", AccountType("INTANGIBLE")},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCode(tc.code, tc.accountType)
			if !errors.Is(err, shared.ErrInvalidCodeFormat) {
				t.Fatalf("expected ErrInvalidCodeFormat, got %v", err)
			}
		})
	}
}

func TestTypeForCode(t *testing.T) {
	if got, ok := TypeForCode("1234"); !ok || got != AccountTypeAsset {
		t.Fatalf("TypeForCode(1234) = %s, %v", got, ok)
	}
	if got, ok := TypeForCode("5000"); !ok || got != AccountTypeExpense {
		t.Fatalf("TypeForCode(5000) = %s, %v", got, ok)
	}
	if _, ok := TypeForCode("9000"); ok {
		t.Fatal("TypeForCode(9000) should not resolve")
	}
	if _, ok := TypeForCode(""); ok {
		t.Fatal("TypeForCode(\"\") should not resolve")
	}
}
