package useragent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"glance/internal/pkg/useragent"
)

const (
	chromeMacUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	firefoxWinUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0"
	safariIphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	edgeWinUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0"
	ipadUA          = "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	androidChromeUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36"
)

func TestParse(t *testing.T) {
	t.Run("desktop chrome on macos", func(t *testing.T) {
		ua := useragent.Parse(chromeMacUA)
		assert.Equal(t, "chrome", ua.Browser)
		assert.Equal(t, "MacOS", ua.OS)
		assert.Equal(t, useragent.DeviceDesktop, ua.Device)
		assert.True(t, ua.Desktop)
		assert.False(t, ua.Bot)
	})

	t.Run("firefox on windows", func(t *testing.T) {
		ua := useragent.Parse(firefoxWinUA)
		assert.Equal(t, "firefox", ua.Browser)
		assert.Equal(t, "Windows", ua.OS)
		assert.Equal(t, useragent.DeviceDesktop, ua.Device)
	})

	t.Run("edge does not classify as chrome", func(t *testing.T) {
		ua := useragent.Parse(edgeWinUA)
		assert.Equal(t, "edge", ua.Browser)
	})

	t.Run("iphone safari is mobile", func(t *testing.T) {
		ua := useragent.Parse(safariIphoneUA)
		assert.Equal(t, "safari", ua.Browser)
		assert.Equal(t, "iOS", ua.OS)
		assert.Equal(t, useragent.DeviceMobile, ua.Device)
		assert.True(t, ua.Mobile)
	})

	t.Run("ipad is a tablet", func(t *testing.T) {
		ua := useragent.Parse(ipadUA)
		assert.Equal(t, useragent.DeviceTablet, ua.Device)
		assert.True(t, ua.Tablet)
	})

	t.Run("android chrome is mobile", func(t *testing.T) {
		ua := useragent.Parse(androidChromeUA)
		assert.Equal(t, "chrome", ua.Browser)
		assert.Equal(t, "Android", ua.OS)
		assert.Equal(t, useragent.DeviceMobile, ua.Device)
	})
}

func TestIsBot(t *testing.T) {
	t.Run("crawlers and http clients are bots", func(t *testing.T) {
		for _, ua := range []string{
			"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
			"curl/8.4.0",
			"python-requests/2.31.0",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/126.0.0.0 Safari/537.36",
		} {
			assert.True(t, useragent.IsBot(ua), "expected bot: %s", ua)
		}
	})

	t.Run("empty user agent is a bot", func(t *testing.T) {
		assert.True(t, useragent.IsBot(""))
		assert.True(t, useragent.IsBot("   "))
	})

	t.Run("real browsers are not bots", func(t *testing.T) {
		assert.False(t, useragent.IsBot(chromeMacUA))
		assert.False(t, useragent.IsBot(safariIphoneUA))
	})
}
