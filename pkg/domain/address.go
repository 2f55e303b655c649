package domain

import (
	"github.com/google/uuid"

	dErrors "protocell/pkg/domain-errors"
)

// Address is the opaque identifier of a deployed component. The execution
// environment mints addresses at instantiation time and verifies caller
// addresses at the boundary; core logic only ever compares them.
type Address uuid.UUID

// NilAddress is the zero address. It is never a valid component reference.
var NilAddress = Address(uuid.Nil)

// NewAddress mints a fresh, globally unique address.
func NewAddress() Address {
	return Address(uuid.New())
}

// ParseAddress validates and returns an Address.
// Addresses must be valid, non-nil UUIDs.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return NilAddress, dErrors.New(dErrors.CodeInvalidArgument, "address must not be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return NilAddress, dErrors.New(dErrors.CodeInvalidArgument, "address must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return NilAddress, dErrors.New(dErrors.CodeInvalidArgument, "address must not be the nil UUID")
	}
	return Address(parsed), nil
}

// String returns the canonical string form of the address.
func (a Address) String() string {
	return uuid.UUID(a).String()
}

// IsNil reports whether the address is the zero address.
func (a Address) IsNil() bool {
	return uuid.UUID(a) == uuid.Nil
}
