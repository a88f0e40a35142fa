package botdetect

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeResolver answers DNS lookups from fixed maps.
type fakeResolver struct {
	addrs map[string][]string // ip -> hostnames
	hosts map[string][]string // hostname -> ips
}

func (f *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if names, ok := f.addrs[addr]; ok {
		return names, nil
	}
	return nil, errors.New("no PTR record")
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if ips, ok := f.hosts[host]; ok {
		return ips, nil
	}
	return nil, errors.New("no A record")
}

func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml")
	h.Set("Accept-Language", "en-US")
	return h
}

func TestClassify_Human(t *testing.T) {
	c := NewClassifier(WithResolver(&fakeResolver{}))

	cls := c.Classify(context.Background(), "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", "203.0.113.10", browserHeaders())

	assert.True(t, cls.IsHuman)
	assert.False(t, cls.IsBot)
	assert.False(t, cls.IsVerifiedBot)
	assert.False(t, cls.Bypassed)
}

func TestClassify_EmptyUserAgent(t *testing.T) {
	c := NewClassifier(WithResolver(&fakeResolver{}))

	cls := c.Classify(context.Background(), "", "203.0.113.10", nil)

	assert.True(t, cls.IsBot)
	assert.False(t, cls.IsHuman)
}

func TestClassify_AutomationTools(t *testing.T) {
	c := NewClassifier(WithResolver(&fakeResolver{}))

	for _, ua := range []string{
		"curl/8.4.0",
		"python-requests/2.31.0",
		"Go-http-client/2.0",
		"Mozilla/5.0 HeadlessChrome/119.0",
		"Scrapy/2.11 (+https://scrapy.org)",
	} {
		cls := c.Classify(context.Background(), ua, "203.0.113.10", nil)
		assert.True(t, cls.IsBot, "expected bot for %q", ua)
		assert.False(t, cls.IsVerifiedBot, "automation tools are never verified: %q", ua)
	}
}

func TestClassify_UnverifiedCrawlerClaim(t *testing.T) {
	// Claims to be Googlebot but the IP has no matching PTR record.
	c := NewClassifier(WithResolver(&fakeResolver{}))

	cls := c.Classify(context.Background(), "Mozilla/5.0 (compatible; Googlebot/2.1)", "203.0.113.10", nil)

	assert.True(t, cls.IsBot)
	assert.False(t, cls.IsVerifiedBot)
	assert.False(t, cls.Bypassed)
}

func TestClassify_VerifiedGooglebot(t *testing.T) {
	resolver := &fakeResolver{
		addrs: map[string][]string{"66.249.66.1": {"crawl-66-249-66-1.googlebot.com."}},
		hosts: map[string][]string{"crawl-66-249-66-1.googlebot.com": {"66.249.66.1"}},
	}
	c := NewClassifier(WithResolver(resolver))

	cls := c.Classify(context.Background(), "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "66.249.66.1", nil)

	assert.True(t, cls.IsBot)
	assert.True(t, cls.IsVerifiedBot)
	assert.Equal(t, "googlebot", cls.VerifiedBotName)
	assert.True(t, cls.Bypassed)
}

func TestClassify_ForwardConfirmMismatch(t *testing.T) {
	// PTR matches the crawler domain but forward resolution points elsewhere:
	// a spoofed PTR record must not verify.
	resolver := &fakeResolver{
		addrs: map[string][]string{"203.0.113.99": {"crawl-fake.googlebot.com."}},
		hosts: map[string][]string{"crawl-fake.googlebot.com": {"198.51.100.7"}},
	}
	c := NewClassifier(WithResolver(resolver))

	cls := c.Classify(context.Background(), "Googlebot/2.1", "203.0.113.99", nil)

	assert.True(t, cls.IsBot)
	assert.False(t, cls.IsVerifiedBot)
}

func TestClassify_VerifiedButNotAllowlisted(t *testing.T) {
	resolver := &fakeResolver{
		addrs: map[string][]string{"180.76.15.5": {"baiduspider-180-76-15-5.crawl.baidu.com."}},
		hosts: map[string][]string{"baiduspider-180-76-15-5.crawl.baidu.com": {"180.76.15.5"}},
	}
	c := NewClassifier(WithResolver(resolver))

	cls := c.Classify(context.Background(), "Mozilla/5.0 (compatible; Baiduspider/2.0)", "180.76.15.5", nil)

	assert.True(t, cls.IsVerifiedBot)
	assert.False(t, cls.Bypassed)
}

func TestClassify_BrowserWithoutAcceptHeader(t *testing.T) {
	c := NewClassifier(WithResolver(&fakeResolver{}))

	cls := c.Classify(context.Background(), "Mozilla/5.0 (X11; Linux x86_64)", "203.0.113.10", http.Header{})

	assert.True(t, cls.IsBot)
	assert.Contains(t, cls.Reason, "Accept")
}
