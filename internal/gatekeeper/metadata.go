package gatekeeper

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/oschwald/geoip2-golang"
)

const (
	// VisitorIDHeader carries the client-derived fingerprint.
	VisitorIDHeader = "X-Visitor-ID"
	// VisitorIDCookie is the fallback fingerprint carrier.
	VisitorIDCookie = "vigil_vid"
)

// Metadata is everything the engine derives from a raw request. Extraction
// is a pure function of the headers: it has no side effects and never fails,
// missing fields simply stay empty.
type Metadata struct {
	RequestID string `json:"request_id"`
	VisitorID string `json:"visitor_id"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
	Origin    string `json:"origin"`
	Country   string `json:"country,omitempty"`
}

// Extractor derives request metadata, optionally enriched with a GeoIP
// country lookup when a GeoLite2 database is configured.
type Extractor struct {
	geo *geoip2.Reader
}

// NewExtractor builds an extractor. geoPath may be empty to disable GeoIP.
func NewExtractor(geoPath string) (*Extractor, error) {
	e := &Extractor{}
	if geoPath != "" {
		reader, err := geoip2.Open(geoPath)
		if err != nil {
			return nil, err
		}
		e.geo = reader
	}
	return e, nil
}

// Close releases the GeoIP database handle.
func (e *Extractor) Close() {
	if e.geo != nil {
		_ = e.geo.Close()
	}
}

// Extract derives the per-request metadata. The visitor id comes from a
// client-supplied header or cookie and is only used for behavioral
// aggregation, never authorization.
func (e *Extractor) Extract(r *http.Request) Metadata {
	md := Metadata{
		RequestID: uuid.NewString(),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
		Origin:    r.Header.Get("Origin"),
	}

	md.VisitorID = r.Header.Get(VisitorIDHeader)
	if md.VisitorID == "" {
		if cookie, err := r.Cookie(VisitorIDCookie); err == nil {
			md.VisitorID = cookie.Value
		}
	}

	if e.geo != nil {
		if ip := net.ParseIP(md.IP); ip != nil {
			if rec, err := e.geo.Country(ip); err == nil {
				md.Country = rec.Country.IsoCode
			}
		}
	}

	return md
}

// clientIP resolves the caller's address, trusting proxy headers in the
// order a reverse proxy would set them.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
