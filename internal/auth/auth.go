// Package auth resolves HTTP Basic credentials into catalogers.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"strings"

	"github.com/pkg/errors"

	"github.com/dharsanguruparan/RecordGate/internal/model"
)

type account struct {
	digest        [sha256.Size]byte
	authorization []string
}

// Authenticator checks credentials against a fixed account table.
type Authenticator struct {
	accounts map[string]account
}

// Parse reads accounts in the form "id:secret:AUTH1+AUTH2" separated by
// commas. The authorization list may be empty.
func Parse(users string) (*Authenticator, error) {
	a := &Authenticator{accounts: make(map[string]account)}
	for _, entry := range strings.Split(users, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("malformed account entry %q", entry)
		}
		var authz []string
		if len(parts) == 3 {
			for _, x := range strings.Split(parts[2], "+") {
				if x = strings.TrimSpace(x); x != "" {
					authz = append(authz, x)
				}
			}
		}
		a.accounts[parts[0]] = account{digest: sha256.Sum256([]byte(parts[1])), authorization: authz}
	}
	return a, nil
}

// Authenticate returns the cataloger for valid credentials.
func (a *Authenticator) Authenticate(id, secret string) (model.Cataloger, bool) {
	acc, ok := a.accounts[id]
	given := sha256.Sum256([]byte(secret))
	if !ok {
		// Compare anyway so unknown ids take as long as wrong secrets.
		hmac.Equal(given[:], given[:])
		return model.Cataloger{}, false
	}
	if !hmac.Equal(acc.digest[:], given[:]) {
		return model.Cataloger{}, false
	}
	return model.Cataloger{ID: id, Authorization: append([]string(nil), acc.authorization...)}, true
}

// Len reports how many accounts are configured.
func (a *Authenticator) Len() int {
	return len(a.accounts)
}
