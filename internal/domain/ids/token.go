package ids

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// crockford omits I, L, O and U so tokens survive being read aloud or typed from email.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// NewToken returns n random bytes as lower-case Crockford base32. n <= 0
// means 16.
func NewToken(n int) (string, error) {
	if n <= 0 {
		n = 16
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToLower(crockford.EncodeToString(buf)), nil
}
