package middleware

import (
	"net/http"
	"strings"

	"github.com/vigil-labs/vigil/backend/internal/util"
)

// sensitiveHeaders never reach a log line in clear text. The visitor
// fingerprint header counts as sensitive, same as the cookie that carries it.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-api-token":         {},
	"x-access-token":      {},
	"x-auth-token":        {},
	"x-api-secret":        {},
	"x-forwarded-for":     {},
	"x-visitor-id":        {},
}

const maxLoggedValueLen = 200

// SanitizeHeaders returns a copy of the headers safe for logging: sensitive
// keys redacted, everything else stripped of control characters and
// truncated.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		clean := make([]string, 0, len(vals))
		for _, v := range vals {
			v = util.SanitizeForLog(v)
			if len(v) > maxLoggedValueLen {
				v = v[:maxLoggedValueLen]
			}
			clean = append(clean, v)
		}
		out[k] = clean
	}
	return out
}

// SanitizePath prepares a request path for safe logging. The query string is
// dropped entirely, it routinely carries tokens and PII.
func SanitizePath(p string) string {
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	p = util.SanitizeForLog(p)
	if len(p) > maxLoggedValueLen {
		p = p[:maxLoggedValueLen]
	}
	return p
}
