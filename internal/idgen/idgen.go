// Package idgen provides cryptographically random ID generation.
//
// Every persisted entity carries a prefixed ID (ord_, po_, dsp_, evt_,
// txa_, inv_) so identifiers are self-describing in logs and audit rows.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Prefixes for the entity types that mint IDs.
const (
	PrefixOrder   = "ord_"
	PrefixPayout  = "po_"
	PrefixDispute = "dsp_"
	PrefixEvent   = "evt_"
	PrefixAudit   = "txa_"
	PrefixInvoice = "inv_"
)

// WithPrefix generates a random ID: prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
