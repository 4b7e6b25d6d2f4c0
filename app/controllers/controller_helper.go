package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GetClientIP determines the client address behind Cloudflare or a reverse
// proxy. It falls back to the socket address.
func GetClientIP(c *fiber.Ctx) string {
	// 1. Cloudflare provides the original client IP in this header
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	// 2. X-Forwarded-For can contain a list of IPs - the first one is the original client
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}

	// 3. X-Real-IP set by nginx
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	// For ::ffff: IPv4-mapped-IPv6 addresses
	return strings.TrimPrefix(c.IP(), "::ffff:")
}
