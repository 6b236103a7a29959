package api

import (
	"context"
	"net/http"

	"github.com/dharsanguruparan/RecordGate/internal/model"
)

type userKey struct{}

// userFrom returns the authenticated cataloger, if any.
func userFrom(ctx context.Context) (model.Cataloger, bool) {
	u, ok := ctx.Value(userKey{}).(model.Cataloger)
	return u, ok
}

// authenticate resolves HTTP Basic credentials. Wrong credentials are always
// refused; missing ones only when required is set.
func (s *Server) authenticate(required bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok {
			if required {
				unauthorized(w)
				return
			}
			next(w, r)
			return
		}
		if s.auth == nil {
			unauthorized(w)
			return
		}
		user, valid := s.auth.Authenticate(id, secret)
		if !valid {
			s.logger.WithField("user", id).Info("authentication failed")
			unauthorized(w)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

// authorizeKVPOnly admits only users holding the KVP authorization. It must
// run after authenticate.
func authorizeKVPOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFrom(r.Context())
		if !user.Has(model.AuthKVP) {
			respondText(w, http.StatusForbidden, "User credentials do not have permission to use this endpoint")
			return
		}
		next(w, r)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="recordgate"`)
	respondText(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
}

// catalogerFor applies the cataloger substitution rules to the request.
func catalogerFor(r *http.Request) (model.Cataloger, error) {
	user, _ := userFrom(r.Context())
	q := r.URL.Query()
	return model.SanitizeCataloger(user, q.Get("cataloger"), q.Has("cataloger"))
}
