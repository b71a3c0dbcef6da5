package main

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxRoomID = 16

// roomID derives a stable id from a configured room name: ASCII letters and
// digits only, upper-cased. Names without any get a hash of the name instead.
func roomID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
		if b.Len() == maxRoomID {
			break
		}
	}
	if b.Len() == 0 && name != "" {
		h := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
		return "R" + strings.ToUpper(h[:8])
	}
	return b.String()
}
