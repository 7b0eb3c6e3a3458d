package shield

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey returns the bcrypt hash of key, suitable for StackConfig.APIKeyHash.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// APIKey returns middleware that requires a key matching the bcrypt hash,
// sent as X-API-Key or as an Authorization bearer token. Paths under a public
// prefix pass through. Missing or wrong keys get 401.
//
// Keys that already verified are remembered by SHA-256 digest so bcrypt runs
// once per distinct key.
func APIKey(hash string, publicPrefixes ...string) func(http.Handler) http.Handler {
	var verified sync.Map
	check := func(key string) bool {
		sum := sha256.Sum256([]byte(key))
		if _, ok := verified.Load(sum); ok {
			return true
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
			return false
		}
		verified.Store(sum, struct{}{})
		return true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range publicPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			key := requestKey(r)
			if key == "" {
				writeDetail(w, http.StatusUnauthorized, "missing API key")
				return
			}
			if !check(key) {
				GetLogger(r.Context()).Warn("apikey: rejected", "ip", ExtractIP(r))
				writeDetail(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
