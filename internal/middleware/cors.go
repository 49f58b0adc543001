package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsMaxAge       = "86400"
)

// parseOrigins はカンマ区切りのオリジン指定を集合に変換する。空要素は無視する。
func parseOrigins(list string) map[string]struct{} {
	origins := make(map[string]struct{})
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins[o] = struct{}{}
		}
	}
	return origins
}

// NewCORSMiddleware はallowedOrigins（カンマ区切り）に含まれるOriginにのみ
// CORSヘッダーを返すミドルウェアを生成する。
// Cookieを送らせるためワイルドカードは使わず、一致したOriginをそのまま返す。
// OPTIONSプリフライトは許可の有無にかかわらず204で終える。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	allowed := parseOrigins(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
