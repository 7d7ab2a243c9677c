package codequality

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint computes the stable identifier of an issue.
// It hashes rule id, normalized message, path and first line; nothing else
// about the issue takes part, so suggestion text or line ends may change
// without changing identity.
func Fingerprint(checkName, message, path string, lineBegin int) string {
	h := sha256.New()
	h.Write([]byte(checkName))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeMessage(message)))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(lineBegin)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeMessage puts a message in NFC form, trims it and collapses
// whitespace runs to a single space.
func NormalizeMessage(message string) string {
	return strings.Join(strings.Fields(norm.NFC.String(message)), " ")
}
