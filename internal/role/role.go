// Package role resolves a wallet address's relationship to a secured
// line — borrower, lender, or arbiter — and computes that role's
// committed and available amounts.
//
// Resolution is a pure decision over caller-supplied records, first match
// wins: borrower, arbiter, selected-position lender, any-position lender.
// A wallet with no relationship resolves to an empty lender role with
// zero amounts rather than a distinct "none" role.
package role

import (
	"sort"

	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/model"
)

// Resolve computes the role metadata for a wallet on a line.
// selectedPositionID may be empty when no position is selected; positions
// and collateral are the line's already-fetched slices.
func Resolve(
	userAddress string,
	line model.SecuredLine,
	selectedPositionID string,
	positions model.PositionMap,
	collateral model.LineCollateral,
) model.UserPositionMetadata {
	user := model.Checksum(userAddress)
	selected, hasSelected := positions[selectedPositionID]

	if user == line.Borrower {
		if hasSelected {
			return model.UserPositionMetadata{
				Role:      model.RoleBorrower,
				Amount:    selected.Principal,
				Available: selected.Deposit.Sub(selected.Principal),
			}
		}
		return model.UserPositionMetadata{
			Role:      model.RoleBorrower,
			Amount:    line.Principal,
			Available: line.Deposit.Sub(line.Principal),
		}
	}

	if user == line.Arbiter {
		// Arbiters are exposed to the full collateral pool, not a debt
		// position.
		value := amount.Zero(amount.UsdDecimals)
		if collateral.Escrow != nil {
			value = collateral.Escrow.CollateralValue
		}
		return model.UserPositionMetadata{
			Role:      model.RoleArbiter,
			Amount:    value,
			Available: value,
		}
	}

	if hasSelected && selected.Lender == user {
		return lenderMetadata(selected)
	}

	// Scan all positions for one lent by this wallet. Ids are sorted so
	// the scan is deterministic.
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if p := positions[id]; p.Lender == user {
			return lenderMetadata(p)
		}
	}

	return model.UserPositionMetadata{
		Role:      model.RoleLender,
		Amount:    amount.Zero(0),
		Available: amount.Zero(0),
	}
}

func lenderMetadata(p model.CreditPosition) model.UserPositionMetadata {
	return model.UserPositionMetadata{
		Role:      model.RoleLender,
		Amount:    p.Deposit,
		Available: p.Deposit.Sub(p.Principal),
	}
}
