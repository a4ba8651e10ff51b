package stamp

import "fmt"

// Error is the stamp program's custom error taxonomy. Codes are stable:
// each member maps to its declaration ordinal, and reserved members keep
// their position so callers matching on numeric codes never break.
type Error uint32

// Program error codes. Several members are reserved for settlement and
// cancellation flows that share this code space; no logic in this module
// returns them.
const (
	ErrInvalidOwner Error = iota
	ErrInvalidMint
	ErrInvalidInstruction
	ErrNotRentExempt
	ErrExpectedAmountMismatch
	ErrInvalidAuthorityID
	ErrAmountOverflow
	ErrAccountAlreadySettled
	ErrAccountAlreadyCanceled
	ErrFeeOverflow
	ErrAccountNotSettledOrCanceled
	ErrAccountNotInitialized
	ErrMathOverflow
	ErrInvalidDepositKey
	ErrInvalidWithdrawKey
	ErrInvalidEscrowKey
	ErrInvalidVaultOwner
	ErrInvalidVaultTokenOwner
	ErrInvalidSrcTokenOwner
	ErrInvalidDstTokenOwner
	ErrInvalidFeeTokenOwner
	ErrInvalidDepositTokenOwner
	ErrInvalidWithdrawTokenOwner
)

var errorMessages = map[Error]string{
	ErrInvalidOwner:                "invalid owner",
	ErrInvalidMint:                 "invalid mint",
	ErrInvalidInstruction:          "invalid instruction",
	ErrNotRentExempt:               "no rent exemption",
	ErrExpectedAmountMismatch:      "amount mismatch",
	ErrInvalidAuthorityID:          "authority is invalid",
	ErrAmountOverflow:              "amount overflow",
	ErrAccountAlreadySettled:       "account already settled",
	ErrAccountAlreadyCanceled:      "account already canceled",
	ErrFeeOverflow:                 "fee overflow",
	ErrAccountNotSettledOrCanceled: "account not settled or canceled",
	ErrAccountNotInitialized:       "account not initialized",
	ErrMathOverflow:                "math overflow",
	ErrInvalidDepositKey:           "invalid deposit key",
	ErrInvalidWithdrawKey:          "invalid withdraw key",
	ErrInvalidEscrowKey:            "invalid escrow key",
	ErrInvalidVaultOwner:           "invalid vault owner",
	ErrInvalidVaultTokenOwner:      "invalid vault token owner",
	ErrInvalidSrcTokenOwner:        "invalid source token owner",
	ErrInvalidDstTokenOwner:        "invalid destination token owner",
	ErrInvalidFeeTokenOwner:        "invalid fee token owner",
	ErrInvalidDepositTokenOwner:    "invalid deposit token owner",
	ErrInvalidWithdrawTokenOwner:   "invalid withdraw token owner",
}

// Error implements the error interface.
func (e Error) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}
	return fmt.Sprintf("custom program error: %#x", uint32(e))
}

// Code returns the stable numeric code of the error.
func (e Error) Code() uint32 {
	return uint32(e)
}
