package i18n

import "net/http"

// Middleware picks a localizer per request from Accept-Language, falling back
// to lang, and stores it in the request context.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := Negotiate(r.Header.Get("Accept-Language"), lang)
			w.Header().Set("Content-Language", chosen)
			ctx := WithLocalizer(r.Context(), NewLocalizer(chosen, lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
