package campaign

import "strings"

// permanentSignatures are substrings of provider errors that mean the
// address will never accept mail.
var permanentSignatures = []string{
	"mailbox does not exist",
	"user unknown",
	"no such user",
	"invalid recipient",
	"address does not exist",
	"unknown recipient",
	"550",
	"553",
}

// IsPermanentFailure reports whether a send error message identifies a dead
// address.
func IsPermanentFailure(msg string) bool {
	m := strings.ToLower(msg)
	for _, sig := range permanentSignatures {
		if strings.Contains(m, sig) {
			return true
		}
	}
	return false
}
