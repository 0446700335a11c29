// ABOUTME: Local certificate authority and key pair generator
// ABOUTME: Filesystem-backed CA implementing the crypto collaborator interfaces

package localca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	rsaBits      = 2048
	caLifetime   = 10 * 365 * 24 * time.Hour
	certLifetime = 365 * 24 * time.Hour
)

// CA is a filesystem-backed certificate authority. The CA key and
// certificate are generated on first use and persisted under the
// configured directory; issued certificates live only in the returned
// bundles.
type CA struct {
	dir    string
	key    *rsa.PrivateKey
	cert   *x509.Certificate
	pem    []byte
	logger *slog.Logger
}

// New opens the CA under dir, generating a self-signed root on first
// use.
func New(dir string) (*CA, error) {
	logger := slog.Default().With("component", "localca")

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating ca directory: %w", err)
	}

	keyPath := filepath.Join(dir, "ca.key")
	certPath := filepath.Join(dir, "ca.crt")

	if _, err := os.Stat(certPath); err == nil {
		return load(dir, keyPath, certPath, logger)
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generating ca key: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "cumulus-auth root", Organization: []string{"Cumulus"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(caLifetime),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating ca certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("writing ca key: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return nil, fmt.Errorf("writing ca certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing ca certificate: %w", err)
	}

	logger.Info("generated new root ca", "dir", dir)
	return &CA{dir: dir, key: key, cert: cert, pem: certPEM, logger: logger}, nil
}

func load(dir, keyPath, certPath string, logger *slog.Logger) (*CA, error) {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading ca key: %w", err)
	}
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("reading ca certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("no pem block in %s", keyPath)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing ca key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("no pem block in %s", certPath)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing ca certificate: %w", err)
	}

	return &CA{dir: dir, key: key, cert: cert, pem: certPEM, logger: logger}, nil
}

// GenerateKeyPair generates an RSA key pair, returning the private key
// PEM, the public key in authorized_keys format, and the legacy MD5
// colon fingerprint.
func (c *CA) GenerateKeyPair() (privateKey, publicKey, fingerprint string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return "", "", "", fmt.Errorf("generating key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	sshPub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding public key: %w", err)
	}
	pub := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))

	return string(keyPEM), pub, ssh.FingerprintLegacyMD5(sshPub), nil
}

// GenerateX509 generates a fresh key and a certificate signing request
// for the given subject string ("/C=US/O=.../CN=..." form; only the CN
// component is carried into the CSR, the rest is organizational
// boilerplate).
func (c *CA) GenerateX509(subject string) (privateKeyPEM, csrPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return "", "", fmt.Errorf("generating key: %w", err)
	}

	tmpl := &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: subjectCN(subject), Organization: []string{"Cumulus"}},
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, tmpl, key)
	if err != nil {
		return "", "", fmt.Errorf("creating csr: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	csr := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
	return string(keyPEM), string(csr), nil
}

// SignCSR signs a certificate request with the root CA. The project id
// is recorded as an organizational unit so a certificate can be traced
// back to its project.
func (c *CA) SignCSR(csrPEM, projectID string) (certPEM string, err error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil {
		return "", fmt.Errorf("no pem block in csr")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parsing csr: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return "", fmt.Errorf("verifying csr signature: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", fmt.Errorf("generating serial: %w", err)
	}

	subject := csr.Subject
	subject.OrganizationalUnit = append(subject.OrganizationalUnit, projectID)

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, c.cert, csr.PublicKey, c.key)
	if err != nil {
		return "", fmt.Errorf("signing certificate: %w", err)
	}

	c.logger.Debug("signed certificate", "cn", csr.Subject.CommonName, "project", projectID)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}

// FetchCA returns the root CA certificate in PEM form. The user id is
// accepted for interface compatibility with per-user CA deployments;
// the local CA has a single root.
func (c *CA) FetchCA(userID string) ([]byte, error) {
	return append([]byte(nil), c.pem...), nil
}

// subjectCN extracts the CN component from a slash-separated subject
// string; with no CN component the whole string is used.
func subjectCN(subject string) string {
	for _, part := range strings.Split(subject, "/") {
		if cn, ok := strings.CutPrefix(part, "CN="); ok {
			return cn
		}
	}
	return subject
}
