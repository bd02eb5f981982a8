package quiz

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentHash fingerprints the input a quiz was generated from, so a frozen
// quiz can be told apart from one built on since-edited narrative.
func ContentHash(storyID string, sections []Section) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(storyID))
	h.Write([]byte{0})
	for _, sec := range sections {
		h.Write([]byte(sec.Title))
		h.Write([]byte{0})
		h.Write([]byte(sec.Body))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
