package model

import (
	"github.com/dharsanguruparan/RecordGate/internal/apierr"
)

// AuthKVP is the authorization that allows acting on behalf of other
// catalogers and using the administrative endpoints.
const AuthKVP = "KVP"

// Cataloger is an already authenticated identity.
type Cataloger struct {
	ID            string   `json:"id" bson:"id"`
	Authorization []string `json:"authorization" bson:"authorization"`
}

// Has reports whether the cataloger holds the named authorization.
func (c Cataloger) Has(authorization string) bool {
	for _, a := range c.Authorization {
		if a == authorization {
			return true
		}
	}
	return false
}

// SanitizeCataloger resolves the cataloger a job runs as. A KVP user may
// substitute another cataloger id; anyone else supplying one is refused.
func SanitizeCataloger(user Cataloger, queryCataloger string, supplied bool) (Cataloger, error) {
	if user.Has(AuthKVP) && supplied && queryCataloger != "" {
		return Cataloger{ID: queryCataloger, Authorization: user.Authorization}, nil
	}
	if !user.Has(AuthKVP) && supplied {
		return Cataloger{}, apierr.Forbidden("Account has no permission to do this request")
	}
	return user, nil
}
