package nctypes

// Flags is the bitset cmd/nccat builds from the parsed options once argument
// parsing completes. It is a plain value; no process-wide mutable flag state
// exists.
type Flags uint32

const (
	ListenMode Flags = 1 << iota
	ConnectMode
	NumericMode
	VerboseMode
	VeryVerboseMode
	RecvDataOnly
	SendDataOnly
	StrictIPv6
	DisableNagle
	DontReuseAddr
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
