// Package minter declares the external USH minter collaborator interface
// consumed by the USH market. The minter is the sole entity that
// mints/burns USH; every other module must hold the facilitator role and
// pass through it.
package minter

import (
	"errors"
	"math/big"

	"nhblend/crypto"
)

// ErrNotFacilitator is returned when a caller attempts to mint/burn without
// having been granted the facilitator role.
var ErrNotFacilitator = errors.New("minter: caller is not a registered facilitator")

// Client is the subset of the USH minter contract's interface the USH
// market consumes.
type Client interface {
	Mint(facilitator crypto.Address, amount *big.Int, destination *crypto.Address) error
	Burn(facilitator crypto.Address, amount *big.Int) error
	IsFacilitator(addr crypto.Address) bool
	USHTokenID() string
}
