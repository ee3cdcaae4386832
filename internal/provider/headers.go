package provider

import (
	"encoding/base64"
	"net/http"
)

func setUserAgent(request *http.Request, userAgent string) {
	request.Header.Set("User-Agent", userAgent)
}

func setContentType(request *http.Request, contentType string) {
	request.Header.Set("Content-Type", contentType)
}

// setBasicAuth encodes key as-is, so a "user:password" key yields standard
// basic auth and a bare token is sent unchanged.
func setBasicAuth(request *http.Request, key string) {
	request.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(key)))
}
