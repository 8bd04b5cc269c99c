// README: Rejects provider webhooks whose X-Twilio-Signature does not match the request.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const TwilioSignatureHeader = "X-Twilio-Signature"

type SignatureChecker interface {
	Valid(url string, params map[string]string, signature string) bool
}

// TwilioSignature validates against publicBaseURL plus the request URI, the
// address the provider signed. Without a base URL the request host is used.
func TwilioSignature(checker SignatureChecker, publicBaseURL string) gin.HandlerFunc {
	base := strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !checker.Valid(requestURL(base, c.Request), params, c.GetHeader(TwilioSignatureHeader)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

func requestURL(base string, r *http.Request) string {
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
			scheme = p
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.RequestURI()
}
