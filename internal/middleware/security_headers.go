package middleware

import "net/http"

// apiSecurityHeaders はJSON APIの全レスポンスに付与するヘッダー。
// 会話内容を含むためキャッシュさせず、ブラウザでの描画・埋め込みも許可しない。
var apiSecurityHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// NewSecurityHeadersMiddleware はセキュリティヘッダーを付与するミドルウェアを返す。
// hstsがtrueの場合はStrict-Transport-Securityも付与する（HTTPS運用時）。
func NewSecurityHeadersMiddleware(hsts bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range apiSecurityHeaders {
				h.Set(kv[0], kv[1])
			}
			if hsts {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}
