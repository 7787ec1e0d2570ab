package referrers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"glance/internal/pkg/referrers"
)

func TestNormalize(t *testing.T) {
	t.Run("extracts the lowercased hostname", func(t *testing.T) {
		assert.Equal(t, "google.com", referrers.Normalize("https://GOOGLE.com/search?q=x"))
	})

	t.Run("strips a leading www", func(t *testing.T) {
		assert.Equal(t, "example.com", referrers.Normalize("https://www.example.com/page"))
	})

	t.Run("handles scheme-less referrers", func(t *testing.T) {
		assert.Equal(t, "example.com", referrers.Normalize("example.com/path"))
	})

	t.Run("empty and unparseable values become direct", func(t *testing.T) {
		assert.Equal(t, referrers.Direct, referrers.Normalize(""))
		assert.Equal(t, referrers.Direct, referrers.Normalize("   "))
		assert.Equal(t, referrers.Direct, referrers.Normalize("://not a url"))
	})
}

func TestFriendlyName(t *testing.T) {
	t.Run("maps known hostnames", func(t *testing.T) {
		assert.Equal(t, "Google", referrers.FriendlyName("google.com"))
		assert.Equal(t, "X/Twitter", referrers.FriendlyName("t.co"))
		assert.Equal(t, "Hacker News", referrers.FriendlyName("news.ycombinator.com"))
	})

	t.Run("matches subdomains of known referrers", func(t *testing.T) {
		assert.Equal(t, "Google", referrers.FriendlyName("images.google.com"))
		assert.Equal(t, "Substack", referrers.FriendlyName("myblog.substack.com"))
	})

	t.Run("capitalizes unknown hostnames", func(t *testing.T) {
		assert.Equal(t, "Example.org", referrers.FriendlyName("example.org"))
	})

	t.Run("keeps the direct bucket intact", func(t *testing.T) {
		assert.Equal(t, "Direct", referrers.FriendlyName(referrers.Direct))
	})
}
