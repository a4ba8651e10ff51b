package runtime

// Rent models the ledger's storage pricing. An account whose balance is
// at or above the rent-exempt minimum for its data size persists
// indefinitely without being charged.
type Rent struct {
	// LamportsPerByteYear is the rent rate.
	LamportsPerByteYear uint64

	// ExemptionThreshold is the number of years of rent an account must
	// hold to be exempt.
	ExemptionThreshold float64
}

// accountStorageOverhead is the per-account metadata size charged in
// addition to the account's own data.
const accountStorageOverhead = 128

// DefaultRent returns the rent parameters used by Solana mainnet.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2.0,
	}
}

// MinimumBalance returns the minimum balance for an account of dataLen
// bytes to be rent exempt.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := accountStorageOverhead + dataLen
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt returns true if the balance covers the rent-exempt minimum
// for dataLen bytes.
func (r Rent) IsExempt(lamports, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
