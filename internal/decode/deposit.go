package decode

import (
	"context"
	"fmt"
	"time"

	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/store"
)

// recordDeposit writes the UserDeposit row a mintConditionalTokens
// instruction produces, kept as its own function since the upstream
// deposit bookkeeping lives in a separate service there too. A missing
// amount arg defaults to zero rather than dropping the deposit, matching
// the upstream service's own fallback.
func (d *Decoder) recordDeposit(ctx context.Context, authority coretypes.Pubkey, amountArg string, underlyingMint coretypes.Pubkey, txSig coretypes.Signature) error {
	amount := coretypes.ZeroAmount
	if amountArg != "" {
		var err error
		amount, err = coretypes.ParseTypedAmount(amountArg)
		if err != nil {
			return fmt.Errorf("%w: amount %q: %v", errBadArg, amountArg, err)
		}
	}
	return d.gw.InsertUserDeposit(ctx, store.UserDeposit{
		UserAcct:    authority,
		TokenAmount: amount,
		MintAcct:    underlyingMint,
		TxSig:       txSig,
		CreatedAt:   time.Now(),
	})
}
