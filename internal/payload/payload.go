// Package payload types the persisted transaction payload at the
// boundary, so no unchecked dynamic map survives into the decoder -
// everything below is a concrete struct.
package payload

import "encoding/json"

// TokenBalance is a pre/post SPL-token balance snapshot attached to an
// account entry.
type TokenBalance struct {
	Mint     string `json:"mint"`
	Owner    string `json:"owner"`
	Amount   string `json:"amount"` // wire convention "<TYPE>:<digits>"
	Decimals int    `json:"decimals"`
}

// Account is one entry of the payload's flat account list.
type Account struct {
	Name              string        `json:"name"`
	Pubkey            string        `json:"pubkey"`
	IsSigner          bool          `json:"isSigner"`
	IsWriteable       bool          `json:"isWriteable"`
	PreBalance        *string       `json:"preBalance,omitempty"`
	PostBalance       *string       `json:"postBalance,omitempty"`
	PreTokenBalance   *TokenBalance `json:"preTokenBalance,omitempty"`
	PostTokenBalance  *TokenBalance `json:"postTokenBalance,omitempty"`
}

// InstructionArg is one named/typed argument of an instruction.
type InstructionArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// InstructionAccount names one account referenced by an instruction,
// alongside its role flags.
type InstructionAccount struct {
	Name        string `json:"name"`
	Pubkey      string `json:"pubkey"`
	IsSigner    bool   `json:"isSigner"`
	IsWriteable bool   `json:"isWriteable"`
}

// Instruction is one decoded instruction of the transaction message.
type Instruction struct {
	Name             string               `json:"name"`
	StackHeight      int                  `json:"stackHeight"`
	ProgramIDIndex   int                  `json:"programIdIndex"`
	Data             string               `json:"data"`
	Accounts         []int                `json:"accounts"`
	AccountsWithData []InstructionAccount `json:"accountsWithData"`
	Args             []InstructionArg     `json:"args"`
}

// Payload is the full structured record stored as text in
// Transaction.payload.
type Payload struct {
	BlockTime             int64         `json:"blockTime"`
	Slot                  uint64        `json:"slot"`
	RecentBlockhash       string        `json:"recentBlockhash"`
	ComputeUnitsConsumed  string        `json:"computeUnitsConsumed"`
	Fee                   string        `json:"fee"`
	Signatures            []string      `json:"signatures"`
	Version               string        `json:"version"`
	LogMessages           []string      `json:"logMessages"`
	Accounts              []Account     `json:"accounts"`
	Instructions          []Instruction `json:"instructions"`
}

// Parse decodes the textual payload into a typed Payload.
func Parse(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// FindInstruction returns the first instruction matching name.
func (p Payload) FindInstruction(name string) (Instruction, bool) {
	for _, ix := range p.Instructions {
		if ix.Name == name {
			return ix, true
		}
	}
	return Instruction{}, false
}

// Account looks up a named account within an instruction's
// accountsWithData list.
func (ix Instruction) Account(name string) (string, bool) {
	for _, a := range ix.AccountsWithData {
		if a.Name == name {
			return a.Pubkey, true
		}
	}
	return "", false
}

// Arg looks up a named argument within an instruction's args list.
func (ix Instruction) Arg(name string) (string, bool) {
	for _, a := range ix.Args {
		if a.Name == name {
			return a.Data, true
		}
	}
	return "", false
}

// AccountEntry finds the payload-level account entry with the given
// pubkey, returning ok=false if absent; callers treat a missing entry or
// a missing post-token-balance as amount zero.
func (p Payload) AccountEntry(pubkey string) (Account, bool) {
	for _, a := range p.Accounts {
		if a.Pubkey == pubkey {
			return a, true
		}
	}
	return Account{}, false
}
