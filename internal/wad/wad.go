// Package wad provides fixed-point arithmetic helpers shared by every risk,
// accrual, and rewards computation in the lending engine. All ratios in the
// protocol are expressed in WAD (1e18) fixed point, the standard on-chain
// convention.
package wad

import "math/big"

// WAD is the fixed-point scale used throughout the protocol: 1e18.
var WAD = big.NewInt(1_000_000_000_000_000_000)

// BPS is the basis-point scale (10_000 == 100%).
var BPS = big.NewInt(10_000)

// One returns a fresh copy of 1 WAD.
func One() *big.Int { return new(big.Int).Set(WAD) }

// Zero returns a fresh zero value, convenient for expressive call sites.
func Zero() *big.Int { return big.NewInt(0) }

// FromInt64 scales a plain integer by WAD (e.g. FromInt64(2) == 2 WAD).
func FromInt64(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), WAD)
}

// Mul computes a*b/WAD, the fixed-point product of two WAD values.
func Mul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return Zero()
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, WAD)
}

// Div computes a*WAD/b, the fixed-point quotient of two WAD values.
func Div(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return Zero()
	}
	out := new(big.Int).Mul(a, WAD)
	return out.Quo(out, b)
}

// DivCeil computes ceil(a*WAD/b).
func DivCeil(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return Zero()
	}
	num := new(big.Int).Mul(a, WAD)
	return CeilDiv(num, b)
}

// MulDiv computes a*b/c with full 256-bit-equivalent big.Int precision,
// rounding towards zero. Used wherever a product of two WAD values must be
// divided by a third arbitrary-scale quantity without an intermediate
// overflow risk (big.Int never overflows, but keeping the multiply-then-
// divide order matters for precision parity with the source protocol).
func MulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return Zero()
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// CeilDiv computes ceil(a/b) for non-negative a and positive b.
func CeilDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return Zero()
	}
	if a.Sign() == 0 {
		return Zero()
	}
	num := new(big.Int).Add(a, new(big.Int).Sub(b, big.NewInt(1)))
	return num.Quo(num, b)
}

// MulDivCeil computes ceil(a*b/c).
func MulDivCeil(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return Zero()
	}
	num := new(big.Int).Mul(a, b)
	return CeilDiv(num, c)
}

// BpsOf computes amount*bps/BPS.
func BpsOf(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || bps == 0 {
		return Zero()
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, BPS)
}

// Min returns the smaller of two big.Int values.
func Min(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns the larger of two big.Int values.
func Max(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// IsPositive reports whether v is non-nil and strictly positive.
func IsPositive(v *big.Int) bool { return v != nil && v.Sign() > 0 }

// IsNonNegative reports whether v is non-nil and not negative.
func IsNonNegative(v *big.Int) bool { return v != nil && v.Sign() >= 0 }

// Clone returns a defensive copy, tolerating a nil input by returning zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return Zero()
	}
	return new(big.Int).Set(v)
}

// SafeSub returns a-b floored at zero, used by accounting paths that must
// never go negative because of truncation drift (e.g. clamping a borrower's
// snapshot against the market aggregate).
func SafeSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(Clone(a), Clone(b))
	if out.Sign() < 0 {
		return Zero()
	}
	return out
}
