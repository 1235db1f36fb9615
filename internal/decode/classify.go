// Package decode implements the transaction decoder: classify a
// persisted transaction's primary instruction, resolve the
// protocol-specific account pairs it touches, and drive the reconciler
// for each one.
package decode

import "github.com/condwatch/indexer/internal/coretypes"

// vaultKind/ammKind distinguish the three vault instructions and the
// three AMM instructions that share an account shape within their
// group, so each group can be decoded by one function keyed on kind.
type vaultKind int

const (
	vaultMint vaultKind = iota
	vaultMerge
	vaultRedeem
)

type ammKind int

const (
	ammSwap ammKind = iota
	ammDeposit
	ammWithdraw
)

// classification is the result of matching an instruction name
// against classifyTable.
type classification struct {
	ixType    coretypes.InstructionType
	isVault   bool
	vaultKind vaultKind
	isAmm     bool
	ammKind   ammKind
}

var classifyTable = map[string]classification{
	"mintConditionalTokens": {
		ixType: coretypes.InstructionVaultMintConditionalTokens, isVault: true, vaultKind: vaultMint,
	},
	"mergeConditionalTokensForUnderlyingTokens": {
		ixType: coretypes.InstructionVaultMergeConditionalTokens, isVault: true, vaultKind: vaultMerge,
	},
	"redeemConditionalTokensForUnderlyingTokens": {
		ixType: coretypes.InstructionVaultRedeemConditionalTokens, isVault: true, vaultKind: vaultRedeem,
	},
	"swap": {
		ixType: coretypes.InstructionAmmSwap, isAmm: true, ammKind: ammSwap,
	},
	"addLiquidity": {
		ixType: coretypes.InstructionAmmDeposit, isAmm: true, ammKind: ammDeposit,
	},
	"removeLiquidity": {
		ixType: coretypes.InstructionAmmWithdraw, isAmm: true, ammKind: ammWithdraw,
	},
	// Classified but not decoded further.
	"placeOrder":          {ixType: coretypes.InstructionOpenbookPlaceOrder},
	"cancelOrder":         {ixType: coretypes.InstructionOpenbookCancelOrder},
	"initializeProposal":  {ixType: coretypes.InstructionAutocratInitializeProposal},
	"finalizeProposal":    {ixType: coretypes.InstructionAutocratFinalizeProposal},
}

// classify returns the classification for the first recognised
// instruction name in order, and false if none matched.
func classify(names []string) (string, classification, bool) {
	for _, name := range names {
		if c, ok := classifyTable[name]; ok {
			return name, c, true
		}
	}
	return "", classification{}, false
}
