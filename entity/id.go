package entity

import (
	"crypto/rand"
	"regexp"
)

const (
	idLength   = 7
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var validEntityID = regexp.MustCompile(`^[a-z0-9]{7}$`)

// ValidID reports whether s is a well formed entity id.
func ValidID(s string) bool {
	return validEntityID.MatchString(s)
}

// randomid returns a fresh entity id. Bytes which would bias the choice of
// character are thrown away.
func randomid() (string, error) {
	const limit = 256 - 256%len(idAlphabet)
	result := make([]byte, 0, idLength)
	buf := make([]byte, 2*idLength)
	for len(result) < idLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			result = append(result, idAlphabet[int(b)%len(idAlphabet)])
			if len(result) == idLength {
				break
			}
		}
	}
	return string(result), nil
}
