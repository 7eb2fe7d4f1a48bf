package solana

// Well-known program ids.
var (
	SystemProgramID          = MustPublicKey("11111111111111111111111111111111")
	TokenProgramID           = MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNEhjMBUQ")

	// AtomicSwapProgramID owns every pool and swap account.
	AtomicSwapProgramID = MustPublicKey("FrmHjkzF1EJ3S45bx6SWvfyCeUNHGcL7AX8mUsfv4DPo")
)
