package runtime

import "errors"

// Program errors shared by the runtime and native programs. These mirror
// the builtin error space of the Solana runtime so callers can
// distinguish failure reasons without parsing messages.
var (
	// ErrInvalidInstructionData is returned for malformed instruction data.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidAccountData is returned when account data cannot be
	// interpreted as the expected state.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrInvalidArgument is returned when an account or parameter does not
	// match what the instruction requires.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingRequiredSignature is returned when a required signer did
	// not sign the transaction.
	ErrMissingRequiredSignature = errors.New("missing required signature")

	// ErrAccountAlreadyInitialized is returned when initializing an
	// account that already holds state.
	ErrAccountAlreadyInitialized = errors.New("account already initialized")

	// ErrUninitializedAccount is returned when using an account that has
	// not been initialized.
	ErrUninitializedAccount = errors.New("uninitialized account")

	// ErrAccountNotRentExempt is returned when an account balance is below
	// the rent-exempt minimum for its data size.
	ErrAccountNotRentExempt = errors.New("account not rent exempt")

	// ErrInsufficientFunds is returned when a transfer or funding step
	// exceeds the source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrArithmeticOverflow is returned when a balance computation would
	// overflow.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrNotEnoughAccountKeys is returned when an instruction references
	// more accounts than were supplied.
	ErrNotEnoughAccountKeys = errors.New("not enough account keys")

	// ErrIncorrectProgramID is returned when an account is owned by an
	// unexpected program.
	ErrIncorrectProgramID = errors.New("incorrect program id")

	// ErrUnsupportedProgram is returned when invoking a program the
	// runtime has no implementation for.
	ErrUnsupportedProgram = errors.New("unsupported program")

	// ErrCallDepthExceeded is returned when cross-program invocations nest
	// deeper than the runtime allows.
	ErrCallDepthExceeded = errors.New("call depth exceeded")

	// ErrPrivilegeEscalation is returned when a cross-program invocation
	// claims signer or writable privileges the caller does not hold.
	ErrPrivilegeEscalation = errors.New("privilege escalation")

	// ErrReadonlyModified is returned when an instruction changed an
	// account no transaction meta marked writable.
	ErrReadonlyModified = errors.New("readonly account modified")

	// ErrAccountMismatch is returned when an invoked instruction
	// references an account the caller did not pass along.
	ErrAccountMismatch = errors.New("instruction references an unknown account")

	// ErrSignatureVerificationFailed is returned when a transaction
	// signature does not verify.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")
)
