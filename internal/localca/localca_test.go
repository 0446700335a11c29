// ABOUTME: Tests for the filesystem-backed local certificate authority
// ABOUTME: Verifies key pair output formats and the CSR signing chain

package localca

import (
	"crypto/x509"
	"encoding/pem"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func setupCA(t *testing.T) *CA {
	t.Helper()
	ca, err := New(t.TempDir())
	require.NoError(t, err)
	return ca
}

func TestCA_PersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	ca1, err := New(dir)
	require.NoError(t, err)
	ca2, err := New(dir)
	require.NoError(t, err)

	pem1, err := ca1.FetchCA("alice")
	require.NoError(t, err)
	pem2, err := ca2.FetchCA("bob")
	require.NoError(t, err)
	assert.Equal(t, pem1, pem2, "reopening must load the same root, not mint a new one")
}

func TestCA_GenerateKeyPair(t *testing.T) {
	ca := setupCA(t)

	priv, pub, fp, err := ca.GenerateKeyPair()
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(priv))
	require.NotNil(t, block)
	assert.Equal(t, "RSA PRIVATE KEY", block.Type)
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)

	sshPub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pub))
	require.NoError(t, err)

	// Public half must belong to the returned private key.
	expected, err := ssh.NewPublicKey(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, expected.Marshal(), sshPub.Marshal())

	assert.Regexp(t, regexp.MustCompile(`^([0-9a-f]{2}:){15}[0-9a-f]{2}$`), fp)
}

func TestCA_GenerateKeyPair_Unique(t *testing.T) {
	ca := setupCA(t)

	_, _, fp1, err := ca.GenerateKeyPair()
	require.NoError(t, err)
	_, _, fp2, err := ca.GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestCA_SigningChain(t *testing.T) {
	ca := setupCA(t)

	priv, csr, err := ca.GenerateX509("/C=US/O=Cumulus/CN=alice-2026-09-01T00:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, priv, "RSA PRIVATE KEY")

	certPEM, err := ca.SignCSR(csr, "apollo")
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(certPEM))
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, "alice-2026-09-01T00:00:00Z", cert.Subject.CommonName)
	assert.Contains(t, cert.Subject.OrganizationalUnit, "apollo")

	caPEM, err := ca.FetchCA("alice")
	require.NoError(t, err)
	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(caPEM))
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	assert.NoError(t, err, "issued certificate must chain to the root")
}

func TestCA_SignCSR_RejectsGarbage(t *testing.T) {
	ca := setupCA(t)

	_, err := ca.SignCSR("not a csr", "apollo")
	assert.Error(t, err)

	bogus := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: []byte("junk")})
	_, err = ca.SignCSR(string(bogus), "apollo")
	assert.Error(t, err)
}

func TestSubjectCN(t *testing.T) {
	assert.Equal(t, "alice-x", subjectCN("/C=US/O=Cumulus/CN=alice-x"))
	assert.Equal(t, "bare", subjectCN("bare"))
	assert.False(t, strings.Contains(subjectCN("/CN=a/O=b"), "O="))
}
