package domain

// Chain identifies the network a called token lives on.
type Chain string

const (
	ChainSOL Chain = "SOL"
	ChainBSC Chain = "BSC"
)

// String returns the string representation of Chain.
func (c Chain) String() string {
	return string(c)
}

// IsValid checks if the chain is a supported value.
func (c Chain) IsValid() bool {
	return c == ChainSOL || c == ChainBSC
}
