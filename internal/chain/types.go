// Package chain wraps the two chain-client capabilities the indexer
// needs: unary JSON-RPC reads and a pubsub account-change stream. Response
// shapes follow the usual Solana RPC conventions (ContextSlot-wrapped
// values, UiTokenAmount), trimmed to the subset the indexer needs.
package chain

// Commitment levels; the core fixes Confirmed for all reads and
// subscriptions.
type Commitment string

const (
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
	CommitmentProcessed Commitment = "processed"
)

// Encoding for getAccountInfo / accountSubscribe.
type Encoding string

const (
	EncodingJSONParsed Encoding = "jsonParsed"
	EncodingBase64     Encoding = "base64"
)

// ContextSlot wraps RPC responses that carry a slot alongside the value.
type ContextSlot struct {
	Slot uint64 `json:"slot"`
}

// UiTokenAmount mirrors the chain's token-amount encoding; Amount is the
// raw digit string, ignoring decimals (the core never uses UiAmount).
type UiTokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// parsedTokenAccountInfo is the jsonParsed shape of an SPL-token account,
// as returned by getAccountInfo and delivered by accountNotification.
type parsedTokenAccountInfo struct {
	Parsed struct {
		Info struct {
			Mint        string        `json:"mint"`
			Owner       string        `json:"owner"`
			TokenAmount UiTokenAmount `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// TokenAccountInfo is the unpacked result of a getAccountInfo call on an
// SPL-token account.
type TokenAccountInfo struct {
	Mint   string
	Owner  string
	Amount string // raw digit string
	Slot   uint64 // context slot of this read, used as a reconcile fallback slot
}

// SignatureInfo is one entry of getSignaturesForAddress, filtered of
// errored signatures by the caller.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       interface{} `json:"err"`
}

// AccountUpdate is one event yielded by a PubsubSession's stream.
type AccountUpdate struct {
	Slot   uint64
	Binary bool // true if the account data arrived as binary/legacy, not jsonParsed
	Mint   string
	Owner  string
	Amount string // raw digit string, parsed.info.tokenAmount.amount
}
