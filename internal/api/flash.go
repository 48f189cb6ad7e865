package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const flashCookie = "daicho_flash"

// Flash kinds. Errors render red, notices green.
const (
	flashError  = "e"
	flashNotice = "n"
)

// setFlash stores a one-shot message for the next page view
func setFlash(c *gin.Context, kind, msg string, secure bool) {
	value := kind + ":" + base64.RawURLEncoding.EncodeToString([]byte(msg))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, value, 60, "/", "", secure, true)
}

// takeFlash reads and clears the pending message
func takeFlash(c *gin.Context, secure bool) (kind, msg string) {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return "", ""
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, "", -1, "/", "", secure, true)

	kind, encoded, ok := strings.Cut(raw, ":")
	if !ok {
		return "", ""
	}
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ""
	}
	return kind, string(b)
}
