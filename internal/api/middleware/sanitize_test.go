package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Cookie", "session=abc")
	h.Set("X-Visitor-ID", "fp-1234")
	h.Set("User-Agent", "Mozilla/5.0\nInjected: line")

	out := SanitizeHeaders(h)

	assert.Equal(t, []string{"<redacted>"}, out["Authorization"])
	assert.Equal(t, []string{"<redacted>"}, out["Cookie"])
	assert.Equal(t, []string{"<redacted>"}, out["X-Visitor-Id"])
	assert.NotContains(t, out["User-Agent"][0], "\n")

	assert.Nil(t, SanitizeHeaders(nil))
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/catalog", SanitizePath("/api/v1/catalog?token=secret"))
	assert.NotContains(t, SanitizePath("/x\ny"), "\n")

	long := "/" + string(make([]byte, 500))
	assert.LessOrEqual(t, len(SanitizePath(long)), 200)
}
