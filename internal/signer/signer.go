// ABOUTME: AWS-style request signature computation for cumulus-auth
// ABOUTME: Recomputes expected HMAC signatures for ec2 and s3 style requests

package signer

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// Signer computes expected request signatures keyed by a user's secret.
// Both sides of the protocol build the same canonical string from the
// request, so any difference in a single parameter changes the result.
//
// The secret must never be logged; Signer holds it only for the
// duration of a verification.
type Signer struct {
	secret []byte
}

// New creates a signer for the given secret key.
func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// SignEC2 computes the expected signature for a query-style request:
// an HMAC-SHA256 over verb, lowercased host, path, and the
// percent-encoded query parameters in byte order.
func (s *Signer) SignEC2(params map[string]string, verb, host, path string) string {
	if path == "" {
		path = "/"
	}

	canonical := strings.Join([]string{
		verb,
		strings.ToLower(host),
		path,
		canonicalQuery(params),
	}, "\n")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignS3 computes the expected signature for a header-style request: an
// HMAC-SHA1 over verb, the canonicalized x-amz-* headers, and the path.
func (s *Signer) SignS3(headers map[string]string, verb, path string) string {
	if path == "" {
		path = "/"
	}

	canonical := verb + "\n" + canonicalAmzHeaders(headers) + "\n" + path

	mac := hmac.New(sha1.New, s.secret)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Matches reports whether the supplied signature equals the expected
// one. Constant-time to avoid leaking prefix information.
func Matches(supplied, expected string) bool {
	return hmac.Equal([]byte(supplied), []byte(expected))
}

// canonicalQuery percent-encodes each key and value and joins them as
// k=v pairs sorted by key. Spaces encode as %20, not +.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	return strings.Join(pairs, "&")
}

func percentEncode(s string) string {
	// url.QueryEscape encodes spaces as "+"; the canonical form wants %20.
	e := url.QueryEscape(s)
	return strings.ReplaceAll(e, "+", "%20")
}

// canonicalAmzHeaders lowercases header names, keeps only the x-amz-*
// family, and emits them sorted as "name:value" lines. Multiple headers
// collapsing to the same lowercase name keep the last value.
func canonicalAmzHeaders(headers map[string]string) string {
	lowered := make(map[string]string)
	for k, v := range headers {
		lk := strings.ToLower(strings.TrimSpace(k))
		if strings.HasPrefix(lk, "x-amz-") {
			lowered[lk] = strings.TrimSpace(v)
		}
	}

	keys := make([]string, 0, len(lowered))
	for k := range lowered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(lowered[k])
	}
	return b.String()
}
