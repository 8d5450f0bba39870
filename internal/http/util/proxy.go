package util

import "github.com/gofiber/fiber/v2"

// TrustProxies makes c.IP() return the first valid X-Forwarded-For hop, but
// only for requests whose peer address is in proxies. Every other request
// gets the peer address, whatever headers it carries.
func TrustProxies(cfg fiber.Config, proxies []string) fiber.Config {
	cfg.ProxyHeader = fiber.HeaderXForwardedFor
	cfg.EnableTrustedProxyCheck = true
	cfg.TrustedProxies = proxies
	cfg.EnableIPValidation = true
	return cfg
}
