package middleware

import "net/http"

// CORS answers browser preflight requests and adds the headers that let the
// single-page client call the API from another origin.
//
// allowedOrigin is either "*" or one exact origin such as
// "https://app.example.com". With a specific origin we echo it back only
// when the request's Origin matches, and add Vary: Origin so shared caches
// do not serve one origin's response to another.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()

			switch {
			case allowedOrigin == "*":
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && origin == allowedOrigin:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
