package journals

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
)

// balanceTolerance bounds rounding slack when comparing totals. A difference
// of 0.01 or more counts as unbalanced.
var balanceTolerance = decimal.NewFromFloat(0.01)

// ValidationResult reports every structural problem with a proposed entry at
// once. Warnings never block creation.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// AccountResolver answers whether an account code exists for the owner.
type AccountResolver interface {
	AccountExists(ctx context.Context, userID, code string) (bool, error)
}

// ReferenceChecker looks up prior entries reusing a reference value. It backs
// a non-blocking warning, so implementations may fail without consequence.
type ReferenceChecker interface {
	EntryByReference(ctx context.Context, userID, reference string) (string, bool, error)
}

// Validate runs the structural and balance checks on a proposed entry. It has
// no side effects: errors are collected, not raised.
func Validate(ctx context.Context, userID string, in CreateEntryInput, resolver AccountResolver, refs ReferenceChecker, logger *slog.Logger) ValidationResult {
	result := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if len(in.Lines) < 2 {
		result.Errors = append(result.Errors, "journal entry must have at least 2 lines")
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for idx, line := range in.Lines {
		n := idx + 1
		hasDebit := line.Debit.IsPositive()
		hasCredit := line.Credit.IsPositive()
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: negative amounts are not allowed", n))
			continue
		}
		if hasDebit && hasCredit {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: cannot have both a debit and a credit amount", n))
		}
		if !hasDebit && !hasCredit {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: must have either a debit or a credit amount", n))
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)

		if line.Pending != nil {
			if impliedType, ok := accounts.TypeForCode(line.Pending.Code); !ok || impliedType != line.Pending.Type {
				result.Errors = append(result.Errors, fmt.Sprintf(
					"line %d: pending account code %s is not in the range for type %s", n, line.Pending.Code, line.Pending.Type))
			}
			continue
		}
		if resolver == nil {
			continue
		}
		exists, err := resolver.AccountExists(ctx, userID, line.AccountCode)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: could not resolve account code %s", n, line.AccountCode))
			continue
		}
		if !exists {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: unknown account code %s", n, line.AccountCode))
		}
	}

	if totalDebit.Sub(totalCredit).Abs().GreaterThanOrEqual(balanceTolerance) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"journal entry is not balanced: Debit=%s, Credit=%s", totalDebit.String(), totalCredit.String()))
	}

	// Duplicate-reference lookup is best effort: a failing check must never
	// block the primary operation.
	if in.Reference != "" && refs != nil {
		displayID, found, err := refs.EntryByReference(ctx, userID, in.Reference)
		switch {
		case err != nil:
			if logger != nil {
				logger.Warn("duplicate reference lookup failed", slog.Any("error", err))
			}
		case found:
			result.Warnings = append(result.Warnings, fmt.Sprintf("reference %q already used by %s", in.Reference, displayID))
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
