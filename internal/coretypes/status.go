package coretypes

import (
	"database/sql/driver"
	"fmt"
)

// TokenAcctStatus mirrors the store's token_acct_status enum. Watching
// doubles as "is supposed to be live" and "was just requested": the
// notification path must accept redundant Watching transitions without
// spawning duplicate subscription tasks.
type TokenAcctStatus string

const (
	StatusWatching TokenAcctStatus = "watching"
	StatusEnabled  TokenAcctStatus = "enabled"
	StatusDisabled TokenAcctStatus = "disabled"
)

// Valid reports whether s is one of the known wire values. An invalid
// enum variant read back from the store is a programmer error and
// should fail the handler task, not be silently coerced.
func (s TokenAcctStatus) Valid() bool {
	switch s {
	case StatusWatching, StatusEnabled, StatusDisabled:
		return true
	default:
		return false
	}
}

func (s *TokenAcctStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = TokenAcctStatus(v)
	case []byte:
		*s = TokenAcctStatus(v)
	default:
		return fmt.Errorf("coretypes: can't scan %T into TokenAcctStatus", src)
	}
	if !s.Valid() {
		return fmt.Errorf("coretypes: invalid token_acct_status %q", string(*s))
	}
	return nil
}

func (s TokenAcctStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("coretypes: invalid token_acct_status %q", string(s))
	}
	return string(s), nil
}

// InstructionType mirrors the store's instruction_type enum. Instructions
// recognised but not yet decoded further still classify.
type InstructionType string

const (
	InstructionVaultMintConditionalTokens     InstructionType = "vault_mint_conditional_tokens"
	InstructionVaultMergeConditionalTokens    InstructionType = "vault_merge_conditional_tokens"
	InstructionVaultRedeemConditionalTokens   InstructionType = "vault_redeem_conditional_tokens_for_underlying_tokens"
	InstructionAmmSwap                        InstructionType = "amm_swap"
	InstructionAmmDeposit                     InstructionType = "amm_deposit"
	InstructionAmmWithdraw                    InstructionType = "amm_withdraw"
	InstructionOpenbookPlaceOrder             InstructionType = "openbook_place_order"
	InstructionOpenbookCancelOrder            InstructionType = "openbook_cancel_order"
	InstructionAutocratInitializeProposal     InstructionType = "autocrat_initialize_proposal"
	InstructionAutocratFinalizeProposal       InstructionType = "autocrat_finalize_proposal"
)

func (t *InstructionType) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = ""
	case string:
		*t = InstructionType(v)
	case []byte:
		*t = InstructionType(v)
	default:
		return fmt.Errorf("coretypes: can't scan %T into InstructionType", src)
	}
	return nil
}

func (t InstructionType) Value() (driver.Value, error) {
	if t == "" {
		return nil, nil
	}
	return string(t), nil
}
