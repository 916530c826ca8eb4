// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements device identity extraction. The device id is an
// opaque, client-minted identifier; there is no authentication behind it, so
// it is suitable for preference scoping and rate-limit keying but never for
// access control.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// DeviceID extracts the opaque device identifier from the request, checking
// the "deviceId" query parameter, then the "X-Device-ID" header, then a
// "device_id" cookie. Returns "" when none is present.
func DeviceID(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return ""
	}
	if v := strings.TrimSpace(c.Query("deviceId")); v != "" {
		return v
	}
	if h := strings.TrimSpace(c.GetHeader("X-Device-ID")); h != "" {
		return h
	}
	if v, err := c.Cookie("device_id"); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}
