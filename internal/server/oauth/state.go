package oauth

import (
	"crypto/subtle"

	"github.com/dmitrijs2005/photokeeper/internal/common"
)

// NewState returns a random value binding the callback to the browser that
// started the flow.
func NewState() (string, error) {
	return common.MakeRandHexString(16)
}

// StateMatches compares the callback state with the one stored at start.
func StateMatches(stored, received string) bool {
	if stored == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(received)) == 1
}
