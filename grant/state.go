package grant

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/goliatone/go-ethauth"
)

// randomState returns the opaque value sent as the OAuth state parameter
func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", ethauth.WrapDownstream(err, ethauth.IDInternal, "failed to generate oauth state")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
