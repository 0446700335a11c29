// ABOUTME: Tests for credential bundle issuance and archiving
// ABOUTME: Uses a fake certificate authority; verifies atomicity and zip contents

package creds

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cumulus-auth/internal/store"
)

// fakeCA is a scriptable CertAuthority for tests.
type fakeCA struct {
	signErr  error
	signedTo string // project id passed to SignCSR
}

func (f *fakeCA) GenerateX509(subject string) (string, string, error) {
	return "-----FAKE KEY for " + subject + "-----", "-----FAKE CSR-----", nil
}

func (f *fakeCA) SignCSR(csrPEM, projectID string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	f.signedTo = projectID
	return "-----FAKE CERT-----", nil
}

func (f *fakeCA) FetchCA(userID string) ([]byte, error) {
	return []byte("-----FAKE CA-----"), nil
}

func testConfig() Config {
	return Config{
		RCFileName:   "cumulusrc",
		KeyFileName:  "pk.pem",
		CertFileName: "cert.pem",
		CAFileName:   "cacert.pem",
		VPNFileName:  "cumulus-client.ovpn",
		CertSubject:  "/C=US/O=Cumulus/CN=%s-%s",
	}
}

func setupIssuer(t *testing.T) (*Issuer, *store.MemStore, *fakeCA) {
	t.Helper()
	m := store.NewMemStore()
	ca := &fakeCA{}
	issuer, err := New(m, ca, testConfig())
	require.NoError(t, err)
	return issuer, m, ca
}

func TestIssuer_Issue(t *testing.T) {
	issuer, m, ca := setupIssuer(t)
	ctx := context.Background()

	user := &store.User{ID: "alice", Name: "alice", AccessKey: "AK", SecretKey: "SK"}
	require.NoError(t, m.CreateVPN(ctx, &store.VPNAllocation{ProjectID: "apollo", Address: "10.0.0.1", Port: 1194}))

	bundle, err := issuer.Issue(ctx, user, "apollo")
	require.NoError(t, err)

	assert.Contains(t, bundle.RC, `EC2_ACCESS_KEY="AK"`)
	assert.Contains(t, bundle.RC, `EC2_SECRET_KEY="SK"`)
	assert.Contains(t, bundle.RC, `CUMULUS_PROJECT="apollo"`)
	assert.Contains(t, bundle.PrivateKey, "FAKE KEY")
	assert.Contains(t, bundle.PrivateKey, "alice-")
	assert.Equal(t, "-----FAKE CERT-----", bundle.Certificate)
	assert.Contains(t, bundle.VPNConfig, "remote 10.0.0.1 1194")
	assert.Equal(t, []byte("-----FAKE CA-----"), bundle.CACert)
	assert.Equal(t, "apollo", ca.signedTo)
}

func TestIssuer_Issue_DefaultsToAccountProject(t *testing.T) {
	issuer, m, ca := setupIssuer(t)
	ctx := context.Background()

	user := &store.User{ID: "alice", Name: "alice", AccessKey: "AK", SecretKey: "SK"}
	require.NoError(t, m.CreateVPN(ctx, &store.VPNAllocation{ProjectID: "alice", Address: "10.0.0.1", Port: 1200}))

	_, err := issuer.Issue(ctx, user, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", ca.signedTo)
}

func TestIssuer_Issue_NoVPNAllocation(t *testing.T) {
	issuer, _, _ := setupIssuer(t)
	ctx := context.Background()

	user := &store.User{ID: "alice", Name: "alice", AccessKey: "AK", SecretKey: "SK"}

	_, err := issuer.Issue(ctx, user, "apollo")
	assert.ErrorIs(t, err, ErrNoVPN)
}

func TestIssuer_Issue_FailsAtomically(t *testing.T) {
	m := store.NewMemStore()
	ca := &fakeCA{signErr: errors.New("hsm offline")}
	issuer, err := New(m, ca, testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	user := &store.User{ID: "alice", Name: "alice", AccessKey: "AK", SecretKey: "SK"}
	require.NoError(t, m.CreateVPN(ctx, &store.VPNAllocation{ProjectID: "apollo", Address: "10.0.0.1", Port: 1194}))

	bundle, err := issuer.Issue(ctx, user, "apollo")
	assert.Error(t, err)
	assert.Nil(t, bundle, "no partial bundle on failure")
}

func TestIssuer_Archive(t *testing.T) {
	issuer, m, _ := setupIssuer(t)
	ctx := context.Background()

	user := &store.User{ID: "alice", Name: "alice", AccessKey: "AK", SecretKey: "SK"}
	require.NoError(t, m.CreateVPN(ctx, &store.VPNAllocation{ProjectID: "apollo", Address: "10.0.0.1", Port: 1194}))

	bundle, err := issuer.Issue(ctx, user, "apollo")
	require.NoError(t, err)

	data, err := issuer.Archive(bundle)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	contents := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = b
	}

	require.Len(t, contents, 5)
	assert.Equal(t, []byte(bundle.RC), contents["cumulusrc"])
	assert.Equal(t, []byte(bundle.PrivateKey), contents["pk.pem"])
	assert.Equal(t, []byte(bundle.Certificate), contents["cert.pem"])
	assert.Equal(t, []byte(bundle.VPNConfig), contents["cumulus-client.ovpn"])
	assert.Equal(t, bundle.CACert, contents["cacert.pem"])
}

func TestIssuer_TemplateOverridePath(t *testing.T) {
	m := store.NewMemStore()
	cfg := testConfig()
	cfg.RCTemplatePath = "templates/cumulusrc.tmpl" // on-disk copy of the default
	issuer, err := New(m, &fakeCA{}, cfg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.CreateVPN(ctx, &store.VPNAllocation{ProjectID: "apollo", Address: "10.0.0.1", Port: 1194}))
	user := &store.User{ID: "alice", Name: "alice", AccessKey: "AK", SecretKey: "SK"}

	bundle, err := issuer.Issue(ctx, user, "apollo")
	require.NoError(t, err)
	assert.Contains(t, bundle.RC, `EC2_ACCESS_KEY="AK"`)
}
