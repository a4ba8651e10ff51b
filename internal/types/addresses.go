// Well-known program and sysvar addresses referenced by the stamp runtime.
package types

// Native program addresses. These match Solana mainnet so instruction
// payloads built here stay compatible with standard clients.
var (
	// SystemProgramAddr is the System Program address.
	SystemProgramAddr = MustPubkeyFromBase58("11111111111111111111111111111111")

	// TokenProgramAddr is the SPL Token Program address.
	TokenProgramAddr = MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// NativeLoaderAddr is the Native Loader address.
	NativeLoaderAddr = MustPubkeyFromBase58("NativeLoader1111111111111111111111111111111")
)

// Sysvar addresses.
var (
	// SysvarRentAddr is the Rent sysvar address.
	SysvarRentAddr = MustPubkeyFromBase58("SysvarRent111111111111111111111111111111111")

	// SysvarClockAddr is the Clock sysvar address.
	SysvarClockAddr = MustPubkeyFromBase58("SysvarC1ock11111111111111111111111111111111")
)

// IsNativeProgram returns true if the pubkey is a program executed
// natively by the runtime rather than loaded from account data.
func IsNativeProgram(p Pubkey) bool {
	switch p {
	case SystemProgramAddr, TokenProgramAddr, NativeLoaderAddr:
		return true
	default:
		return false
	}
}

// IsSysvar returns true if the pubkey is a sysvar account.
func IsSysvar(p Pubkey) bool {
	switch p {
	case SysvarRentAddr, SysvarClockAddr:
		return true
	default:
		return false
	}
}
