package handler

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/quizgen/internal/i18n"
)

// keyVerifier checks API keys against a bcrypt hash. A key that passed once
// is remembered by its SHA-256 digest so later requests skip bcrypt.
type keyVerifier struct {
	hash []byte

	mu       sync.RWMutex
	verified [][sha256.Size]byte
}

func newKeyVerifier(hash string) *keyVerifier {
	if hash == "" {
		return nil
	}
	return &keyVerifier{hash: []byte(hash)}
}

func (k *keyVerifier) verify(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))

	k.mu.RLock()
	for _, v := range k.verified {
		if subtle.ConstantTimeCompare(v[:], sum[:]) == 1 {
			k.mu.RUnlock()
			return true
		}
	}
	k.mu.RUnlock()

	if err := bcrypt.CompareHashAndPassword(k.hash, []byte(key)); err != nil {
		return false
	}
	k.mu.Lock()
	k.verified = append(k.verified, sum)
	k.mu.Unlock()
	return true
}

// requireAPIKey is middleware that checks the Authorization bearer token
// when an API key hash is configured.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.keys == nil {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok || !h.keys.verify(token) {
			slog.Warn("rejected request with missing or invalid API key", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="quizgen"`)
			writeDetail(w, http.StatusUnauthorized, appI18n.T(r.Context(), "ErrUnauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HashAPIKey returns the bcrypt hash to configure for key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
