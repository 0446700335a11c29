// ABOUTME: Tests for request signature computation
// ABOUTME: Covers determinism, parameter sensitivity, and canonicalization

package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignEC2_Deterministic(t *testing.T) {
	params := map[string]string{
		"Action":    "DescribeInstances",
		"Version":   "2010-06-15",
		"Timestamp": "2010-10-08T06:56:00Z",
	}

	s1 := New("secret").SignEC2(params, "GET", "api.example.com:8773", "/services/Cloud")
	s2 := New("secret").SignEC2(params, "GET", "api.example.com:8773", "/services/Cloud")
	assert.Equal(t, s1, s2, "two independent computations must be byte-identical")
	assert.NotEmpty(t, s1)
}

func TestSignEC2_ParameterSensitivity(t *testing.T) {
	params := map[string]string{
		"Action":  "DescribeInstances",
		"Version": "2010-06-15",
	}
	base := New("secret").SignEC2(params, "GET", "api.example.com:8773", "/")

	altered := map[string]string{
		"Action":  "TerminateInstances",
		"Version": "2010-06-15",
	}
	assert.NotEqual(t, base, New("secret").SignEC2(altered, "GET", "api.example.com:8773", "/"))

	added := map[string]string{
		"Action":  "DescribeInstances",
		"Version": "2010-06-15",
		"Extra":   "x",
	}
	assert.NotEqual(t, base, New("secret").SignEC2(added, "GET", "api.example.com:8773", "/"))
}

func TestSignEC2_SecretSensitivity(t *testing.T) {
	params := map[string]string{"Action": "DescribeInstances"}

	s1 := New("secret-one").SignEC2(params, "GET", "host", "/")
	s2 := New("secret-two").SignEC2(params, "GET", "host", "/")
	assert.NotEqual(t, s1, s2)
}

func TestSignEC2_VerbHostPathSensitivity(t *testing.T) {
	params := map[string]string{"Action": "DescribeInstances"}
	s := New("secret")

	base := s.SignEC2(params, "GET", "host:8773", "/")
	assert.NotEqual(t, base, s.SignEC2(params, "POST", "host:8773", "/"))
	assert.NotEqual(t, base, s.SignEC2(params, "GET", "other:8773", "/"))
	assert.NotEqual(t, base, s.SignEC2(params, "GET", "host:8773", "/other"))
}

func TestSignEC2_HostCaseInsensitive(t *testing.T) {
	params := map[string]string{"Action": "DescribeInstances"}
	s := New("secret")

	assert.Equal(t,
		s.SignEC2(params, "GET", "API.Example.COM:8773", "/"),
		s.SignEC2(params, "GET", "api.example.com:8773", "/"),
	)
}

func TestSignEC2_EmptyPathDefaults(t *testing.T) {
	params := map[string]string{"Action": "DescribeInstances"}
	s := New("secret")

	assert.Equal(t,
		s.SignEC2(params, "GET", "host", ""),
		s.SignEC2(params, "GET", "host", "/"),
	)
}

func TestSignEC2_SpecialCharacterEncoding(t *testing.T) {
	s := New("secret")

	// Values with spaces and reserved characters still sign
	// deterministically and differ from their encoded look-alikes.
	a := s.SignEC2(map[string]string{"Name": "hello world"}, "GET", "host", "/")
	b := s.SignEC2(map[string]string{"Name": "hello+world"}, "GET", "host", "/")
	assert.NotEqual(t, a, b)
}

func TestSignS3_Deterministic(t *testing.T) {
	headers := map[string]string{
		"X-Amz-Acl":  "public-read",
		"X-Amz-Meta": "v",
		"Host":       "ignored.example.com",
	}

	s1 := New("secret").SignS3(headers, "PUT", "/bucket/key")
	s2 := New("secret").SignS3(headers, "PUT", "/bucket/key")
	assert.Equal(t, s1, s2)
}

func TestSignS3_OnlyAmzHeadersMatter(t *testing.T) {
	s := New("secret")

	with := s.SignS3(map[string]string{"X-Amz-Acl": "private", "Host": "a"}, "PUT", "/b/k")
	without := s.SignS3(map[string]string{"X-Amz-Acl": "private", "Host": "b"}, "PUT", "/b/k")
	assert.Equal(t, with, without, "non-amz headers are not part of the canonical string")

	changed := s.SignS3(map[string]string{"X-Amz-Acl": "public-read", "Host": "a"}, "PUT", "/b/k")
	assert.NotEqual(t, with, changed)
}

func TestSignS3_HeaderNameCaseInsensitive(t *testing.T) {
	s := New("secret")

	assert.Equal(t,
		s.SignS3(map[string]string{"X-AMZ-ACL": "private"}, "PUT", "/b/k"),
		s.SignS3(map[string]string{"x-amz-acl": "private"}, "PUT", "/b/k"),
	)
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("abc", "abc"))
	assert.False(t, Matches("abc", "abd"))
	assert.False(t, Matches("abc", "abcd"))
	assert.False(t, Matches("", "abc"))
}
