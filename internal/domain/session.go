package domain

// ChainID identifies the network the vault lives on.
type ChainID uint64

// Session carries the caller identity for a vault operation.
// It is an explicit value passed into every call; there is no ambient
// "current account" state anywhere in the core.
type Session struct {
	Caller Address
	Chain  ChainID
}

// Connected reports whether the session has a caller address.
func (s Session) Connected() bool {
	return s.Caller != ""
}
