package idmap

import "errors"

// ErrInternalIDMismatch is returned when a create-node operation's expected
// internal id does not match the next id the map would assign — this
// should only happen if WAL replay and live state have diverged, which
// indicates a WalProtocol-class bug upstream (spec §7).
var ErrInternalIDMismatch = errors.New("idmap: expected internal id does not match next internal id")
