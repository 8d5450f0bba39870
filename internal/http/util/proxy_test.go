package util

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustProxies(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		header  string
		want    string
	}{
		{name: "untrusted peer ignores forwarded header", header: "203.0.113.9", want: "0.0.0.0"},
		{name: "untrusted peer ignores forwarded chain", proxies: []string{"10.0.0.1"}, header: "203.0.113.9, 10.0.0.1", want: "0.0.0.0"},
		{name: "trusted peer uses first hop", proxies: []string{"0.0.0.0"}, header: "203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "trusted peer without header", proxies: []string{"0.0.0.0"}, want: "0.0.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(TrustProxies(fiber.Config{}, tt.proxies))
			app.Get("/", func(c *fiber.Ctx) error {
				return c.SendString(c.IP())
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderXForwardedFor, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(body))
		})
	}
}
