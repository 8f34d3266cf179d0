package ushmarket

import (
	"math/big"

	"nhblend/internal/discount"
	"nhblend/internal/wad"
)

// updateBorrowsData recomputes a borrower's current_borrow and this
// market's aggregate borrow totals given an interaction, then picks the
// borrower's new discount per strategy and folds it into effective_borrows,
// ceil-dividing the negative effective_borrows contribution so the
// aggregate never under-subtracts what a borrower's prior discount
// contributed.
func (m *Market) updateBorrowsData(borrower string, amount *big.Int, interaction InteractionType, strategy DiscountStrategy) (effectiveAmount, newBorrow, totalBorrows *big.Int, err error) {
	marketIndex := wad.Clone(m.borrowIndex)

	snap, hasSnapshot := m.snapshots[borrower]
	var accountIndex, currentBorrow, oldBorrow, oldDiscount *big.Int
	if hasSnapshot {
		accountIndex = wad.Clone(snap.BorrowIndex)
		oldBorrow = wad.Clone(snap.BorrowAmount)
		oldDiscount = wad.Clone(snap.Discount)
		currentBorrow = m.currentBorrowAmount(snap, marketIndex)
	} else {
		accountIndex = wad.Clone(marketIndex)
		oldBorrow = wad.Zero()
		oldDiscount = wad.Zero()
		currentBorrow = wad.Zero()
	}

	var newBorrowAmt, totalBorrowsAmt *big.Int
	switch interaction {
	case InteractionBorrow:
		newBorrowAmt = new(big.Int).Add(currentBorrow, amount)
		totalBorrowsAmt = new(big.Int).Add(m.totalBorrows, amount)
		effectiveAmount = wad.Clone(amount)

	case InteractionRepay:
		currentTotalBorrows := wad.Clone(m.totalBorrows)
		clampedCurrent := wad.Min(currentTotalBorrows, currentBorrow)
		repayment := wad.Min(clampedCurrent, amount)
		newBorrowAmt = wad.SafeSub(clampedCurrent, repayment)
		totalBorrowsAmt = wad.SafeSub(currentTotalBorrows, repayment)
		effectiveAmount = repayment

	case InteractionEnterExit:
		if wad.IsPositive(amount) {
			return nil, nil, nil, ErrAmountMustBeZero
		}
		newBorrowAmt = wad.Clone(currentBorrow)
		totalBorrowsAmt = wad.Clone(m.totalBorrows)
		effectiveAmount = wad.Zero()
	}

	// account/total principal
	if newBorrowAmt.Cmp(oldBorrow) >= 0 {
		delta := new(big.Int).Sub(newBorrowAmt, oldBorrow)
		m.totalPrincipal = new(big.Int).Add(m.totalPrincipal, delta)
	} else {
		delta := new(big.Int).Sub(oldBorrow, newBorrowAmt)
		m.totalPrincipal = wad.SafeSub(m.totalPrincipal, delta)
	}

	var newDiscount *big.Int
	switch strategy {
	case DiscountPrevious:
		newDiscount = wad.Clone(oldDiscount)
	case DiscountCached:
		newDiscount, err = discount.AccountDiscount(m.discountTable, borrower, m.underlyingID, newBorrowAmt, discount.FXCached, m.discountCollateral, m.priceSource)
	case DiscountUpdated:
		newDiscount, err = discount.AccountDiscount(m.discountTable, borrower, m.underlyingID, newBorrowAmt, discount.FXUpdated, m.discountCollateral, m.priceSource)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	m.snapshots[borrower] = AccountSnapshot{
		BorrowAmount: newBorrowAmt,
		BorrowIndex:  marketIndex,
		Discount:     newDiscount,
	}
	m.totalBorrows = totalBorrowsAmt

	// effective_borrows: positive contribution first, then subtract the
	// prior contribution this snapshot used to make.
	positive := wad.Mul(wad.SafeSub(wad.WAD, newDiscount), newBorrowAmt)
	m.effectiveBorrows = new(big.Int).Add(m.effectiveBorrows, positive)

	negNumerator := new(big.Int).Mul(wad.SafeSub(wad.WAD, oldDiscount), marketIndex)
	negNumerator.Mul(negNumerator, oldBorrow)
	negDenominator := new(big.Int).Mul(accountIndex, wad.WAD)
	negative := wad.CeilDiv(negNumerator, negDenominator)
	m.effectiveBorrows = wad.SafeSub(m.effectiveBorrows, negative)

	return effectiveAmount, newBorrowAmt, totalBorrowsAmt, nil
}
