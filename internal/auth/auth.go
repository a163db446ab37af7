// Package auth decides whether a request may act on a stored file, using
// either the file's access key or a token signed with it.
package auth

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jaywantadh/BlockStash/internal/metadata"
)

// ErrUnauthorized is returned by callers that turn a denied check into an
// error.
var ErrUnauthorized = errors.New("unauthorized")

// Params are the credentials a request carries.
type Params struct {
	AccessKey   string
	AccessToken string
	// Expires is an absolute unix timestamp in milliseconds, as sent.
	Expires string
}

// ParamsFromValues reads access_key, access_token and expires from a query.
func ParamsFromValues(v url.Values) Params {
	return Params{
		AccessKey:   v.Get("access_key"),
		AccessToken: v.Get("access_token"),
		Expires:     v.Get("expires"),
	}
}

// now is replaced in tests.
var now = time.Now

// HasKey reports whether params carry the file's exact access key.
func HasKey(meta *metadata.FileMetadata, p Params) bool {
	return p.AccessKey != "" && equal(p.AccessKey, meta.AccessKey)
}

// IsAuthorized reports whether a request with method may proceed.
func IsAuthorized(meta *metadata.FileMetadata, method string, p Params) bool {
	if HasKey(meta, p) {
		return true
	}
	if p.AccessToken == "" {
		return false
	}
	if probeMethodAllowed(method) {
		return true
	}

	if p.Expires == "" {
		return equal(p.AccessToken, Token(meta.AccessKey, method, ""))
	}
	ms, err := strconv.ParseInt(p.Expires, 10, 64)
	if err != nil || now().UnixMilli() >= ms {
		return false
	}
	return equal(p.AccessToken, Token(meta.AccessKey, method, p.Expires))
}

// probeMethodAllowed admits metadata-only probes whenever some token is
// present, valid or not. Existing clients issue HEAD and OPTIONS with stale
// tokens.
func probeMethodAllowed(method string) bool {
	return method == http.MethodHead || method == http.MethodOptions
}

// Token signs method (and an optional expiry) with key.
func Token(key, method, expires string) string {
	sum := sha1.Sum([]byte(key + method + expires))
	return hex.EncodeToString(sum[:])
}

// Expiry formats t the way Token and Params expect it.
func Expiry(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
