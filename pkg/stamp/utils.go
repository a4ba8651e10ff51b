package stamp

import (
	"crypto/subtle"
	"fmt"
	"math"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/runtime"
	"github.com/GotokHQ/stamp/pkg/runtime/system"
	"github.com/GotokHQ/stamp/pkg/runtime/token"
)

// feeDenominator converts basis points to a rate: 10000 bp = 100%.
const feeDenominator = 10000

// initialized is satisfied by any account state carrying an
// initialization flag.
type initialized interface {
	IsInitialized() bool
}

// AssertUninitialized fails if the state claims to be initialized.
func AssertUninitialized(state initialized) error {
	if state.IsInitialized() {
		return runtime.ErrAccountAlreadyInitialized
	}
	return nil
}

// AssertSigner fails unless the account authorized the current
// operation.
func AssertSigner(info *runtime.AccountInfo) error {
	if info.IsSigner {
		return nil
	}
	return runtime.ErrMissingRequiredSignature
}

// AssertOwnedBy fails unless the account is owned by the expected
// program.
func AssertOwnedBy(info *runtime.AccountInfo, owner types.Pubkey) error {
	if !CmpPubkeys(info.Owner, owner) {
		return ErrInvalidOwner
	}
	return nil
}

// AssertTokenOwnedBy fails unless the token account belongs to the
// expected owner.
func AssertTokenOwnedBy(account *token.Account, owner types.Pubkey) error {
	if !CmpPubkeys(account.Owner, owner) {
		return ErrInvalidOwner
	}
	return nil
}

// AssertAccountKey binds a logical role to the address actually
// supplied: it fails with the given error, or a generic argument error
// when err is nil, unless the account has the expected key.
func AssertAccountKey(info *runtime.AccountInfo, key types.Pubkey, err error) error {
	if CmpPubkeys(info.Key, key) {
		return nil
	}
	if err != nil {
		return err
	}
	return runtime.ErrInvalidArgument
}

// AssertRentExempt fails if the account balance is below the rent-exempt
// minimum for its data size.
func AssertRentExempt(rent runtime.Rent, info *runtime.AccountInfo) error {
	if !rent.IsExempt(info.Lamports, uint64(len(info.Data))) {
		return runtime.ErrAccountNotRentExempt
	}
	return nil
}

// AssertInitialized decodes the account as a token account and fails if
// it has not been initialized.
func AssertInitialized(info *runtime.AccountInfo) (*token.Account, error) {
	account, err := token.Unpack(info.Data)
	if err != nil {
		return nil, err
	}
	if !account.IsInitialized() {
		return nil, ErrAccountNotInitialized
	}
	return account, nil
}

// CmpPubkeys compares two pubkeys without secret-dependent branching.
func CmpPubkeys(a, b types.Pubkey) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// CalculateFee returns floor(amount * feeBasisPoints / 10000), failing
// with ErrMathOverflow instead of wrapping.
func CalculateFee(amount, feeBasisPoints uint64) (uint64, error) {
	if feeBasisPoints != 0 && amount > math.MaxUint64/feeBasisPoints {
		return 0, ErrMathOverflow
	}
	return amount * feeBasisPoints / feeDenominator, nil
}

// CalculateAmountWithFee returns amount plus its fee, with the same
// overflow policy as CalculateFee.
func CalculateAmountWithFee(amount, feeBasisPoints uint64) (uint64, error) {
	fee, err := CalculateFee(amount, feeBasisPoints)
	if err != nil {
		return 0, err
	}
	if amount > math.MaxUint64-fee {
		return 0, ErrMathOverflow
	}
	return amount + fee, nil
}

// EmptyAccountBalance moves the source account's entire balance to the
// receiver.
func EmptyAccountBalance(source, receiver *runtime.AccountInfo) error {
	if receiver.Lamports > math.MaxUint64-source.Lamports {
		return ErrMathOverflow
	}
	receiver.Lamports += source.Lamports
	source.Lamports = 0
	return nil
}

// Transfer moves a balance from source to destination as either a
// native-currency transfer or a token transfer, selected by isNative.
// Both paths are authorized by the supplied derivation seeds; exactly
// one path executes, and failures of the underlying call propagate
// unchanged.
func Transfer(
	ctx *runtime.InstructionContext,
	isNative bool,
	source, destination, authority *runtime.AccountInfo,
	amount uint64,
	signerSeeds [][][]byte,
) error {
	if isNative {
		return NativeTransfer(ctx, source, destination, amount, signerSeeds)
	}
	return TokenTransfer(ctx, source, destination, authority, amount, signerSeeds)
}

// NativeTransfer moves lamports from source to destination through the
// system program.
func NativeTransfer(
	ctx *runtime.InstructionContext,
	source, destination *runtime.AccountInfo,
	amount uint64,
	signerSeeds [][][]byte,
) error {
	return ctx.InvokeSigned(
		system.Transfer(source.Key, destination.Key, amount),
		signerSeeds,
	)
}

// TokenTransfer moves token units from source to destination with
// authority as the token-account owner.
func TokenTransfer(
	ctx *runtime.InstructionContext,
	source, destination, authority *runtime.AccountInfo,
	amount uint64,
	signerSeeds [][][]byte,
) error {
	return ctx.InvokeSigned(
		token.Transfer(source.Key, destination.Key, authority.Key, amount),
		signerSeeds,
	)
}

// CreateNewAccountRaw funds, allocates, and assigns a brand-new account
// at a derived address. The allocation and assignment are authorized by
// the derivation seeds; they only succeed if the address was in fact
// produced by those exact seeds. Each step is a distinct failure point,
// and the enclosing transaction's atomicity guarantees that a failure
// anywhere leaves no partial account behind.
func CreateNewAccountRaw(
	ctx *runtime.InstructionContext,
	programID types.Pubkey,
	newAccount, payer *runtime.AccountInfo,
	size uint64,
	signerSeeds [][]byte,
) error {
	requiredLamports := ctx.RentMinimum(size)

	if requiredLamports > 0 {
		ctx.Log("Transfer %d lamports to the new account", requiredLamports)
		if err := ctx.Invoke(system.Transfer(payer.Key, newAccount.Key, requiredLamports)); err != nil {
			return fmt.Errorf("fund new account: %w", err)
		}
	}

	seeds := [][][]byte{signerSeeds}

	ctx.Log("Allocate space for the account %s", newAccount.Key)
	if err := ctx.InvokeSigned(system.Allocate(newAccount.Key, size), seeds); err != nil {
		return fmt.Errorf("allocate: %w", err)
	}

	ctx.Log("Assign the account to the owning program")
	if err := ctx.InvokeSigned(system.Assign(newAccount.Key, programID), seeds); err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	return nil
}
