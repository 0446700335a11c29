// ABOUTME: Credential bundle issuance for users within a project
// ABOUTME: Sequences rc rendering, cert signing, and VPN config into an atomic bundle

package creds

import (
	"archive/zip"
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/2389/cumulus-auth/internal/store"
)

//go:embed templates/cumulusrc.tmpl templates/client.ovpn.tmpl
var defaultTemplates embed.FS

// ErrNoVPN is returned when the project has no VPN allocation, e.g.
// when VPN support was disabled at project-creation time.
var ErrNoVPN = errors.New("project has no vpn allocation")

// CertAuthority is the crypto collaborator the issuer sequences. The
// issuer never touches key material itself.
type CertAuthority interface {
	GenerateX509(subject string) (privateKeyPEM, csrPEM string, err error)
	SignCSR(csrPEM, projectID string) (certPEM string, err error)
	FetchCA(userID string) ([]byte, error)
}

// Config names the files inside the bundle and locates the templates.
// Empty template paths fall back to the embedded defaults.
type Config struct {
	RCFileName   string
	KeyFileName  string
	CertFileName string
	CAFileName   string
	VPNFileName  string

	// CertSubject is a printf template receiving the user id and an
	// RFC 3339 timestamp.
	CertSubject string

	RCTemplatePath  string
	VPNTemplatePath string
}

// Bundle is a complete credential set for one user in one project.
// Either every field is populated or Issue returned an error; no
// partial bundle is ever produced.
type Bundle struct {
	RC          string
	PrivateKey  string
	Certificate string
	VPNConfig   string
	CACert      []byte
}

// Issuer assembles credential bundles.
type Issuer struct {
	store   store.Store
	ca      CertAuthority
	cfg     Config
	rcTmpl  *template.Template
	vpnTmpl *template.Template
	logger  *slog.Logger
}

// New creates an issuer, loading rc and VPN templates from the
// configured paths or the embedded defaults.
func New(st store.Store, ca CertAuthority, cfg Config) (*Issuer, error) {
	rcTmpl, err := loadTemplate("rc", cfg.RCTemplatePath, "templates/cumulusrc.tmpl")
	if err != nil {
		return nil, err
	}
	vpnTmpl, err := loadTemplate("vpn", cfg.VPNTemplatePath, "templates/client.ovpn.tmpl")
	if err != nil {
		return nil, err
	}

	return &Issuer{
		store:   st,
		ca:      ca,
		cfg:     cfg,
		rcTmpl:  rcTmpl,
		vpnTmpl: vpnTmpl,
		logger:  slog.Default().With("component", "creds"),
	}, nil
}

// Issue assembles the credential bundle for a user within a project.
// An empty projectID defaults to the user's own account project. The
// project must hold a VPN allocation; otherwise Issue fails with
// ErrNoVPN before any key material is generated.
func (i *Issuer) Issue(ctx context.Context, user *store.User, projectID string) (*Bundle, error) {
	if projectID == "" {
		projectID = user.ID
	}

	vpn, err := i.store.GetVPN(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("project %s: %w", projectID, ErrNoVPN)
		}
		return nil, fmt.Errorf("looking up vpn allocation: %w", err)
	}

	rc, err := i.renderRC(user, projectID)
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf(i.cfg.CertSubject, user.ID, time.Now().UTC().Format(time.RFC3339))
	privateKey, csr, err := i.ca.GenerateX509(subject)
	if err != nil {
		return nil, fmt.Errorf("generating x509 key and csr: %w", err)
	}
	cert, err := i.ca.SignCSR(csr, projectID)
	if err != nil {
		return nil, fmt.Errorf("signing csr: %w", err)
	}

	vpnConfig, err := i.renderVPN(vpn)
	if err != nil {
		return nil, err
	}

	caCert, err := i.ca.FetchCA(user.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching ca certificate: %w", err)
	}

	i.logger.Info("issued credential bundle", "user", user.ID, "project", projectID)
	return &Bundle{
		RC:          rc,
		PrivateKey:  privateKey,
		Certificate: cert,
		VPNConfig:   vpnConfig,
		CACert:      caCert,
	}, nil
}

// Archive packages a bundle into a zip with the configured file names,
// contents byte-for-byte.
func (i *Issuer) Archive(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := []struct {
		name string
		data []byte
	}{
		{i.cfg.RCFileName, []byte(b.RC)},
		{i.cfg.KeyFileName, []byte(b.PrivateKey)},
		{i.cfg.CertFileName, []byte(b.Certificate)},
		{i.cfg.VPNFileName, []byte(b.VPNConfig)},
		{i.cfg.CAFileName, b.CACert},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("adding %s to archive: %w", f.name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("writing %s to archive: %w", f.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (i *Issuer) renderRC(user *store.User, projectID string) (string, error) {
	var b strings.Builder
	err := i.rcTmpl.Execute(&b, map[string]string{
		"AccessKey": user.AccessKey,
		"SecretKey": user.SecretKey,
		"Project":   projectID,
		"KeyFile":   i.cfg.KeyFileName,
		"CertFile":  i.cfg.CertFileName,
		"CAFile":    i.cfg.CAFileName,
	})
	if err != nil {
		return "", fmt.Errorf("rendering rc file: %w", err)
	}
	return b.String(), nil
}

func (i *Issuer) renderVPN(vpn *store.VPNAllocation) (string, error) {
	var b strings.Builder
	err := i.vpnTmpl.Execute(&b, map[string]any{
		"Address":  vpn.Address,
		"Port":     vpn.Port,
		"KeyFile":  i.cfg.KeyFileName,
		"CertFile": i.cfg.CertFileName,
		"CAFile":   i.cfg.CAFileName,
	})
	if err != nil {
		return "", fmt.Errorf("rendering vpn config: %w", err)
	}
	return b.String(), nil
}

func loadTemplate(name, path, embedded string) (*template.Template, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s template: %w", name, err)
		}
		tmpl, err := template.New(name).Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		return tmpl, nil
	}

	data, err := defaultTemplates.ReadFile(embedded)
	if err != nil {
		return nil, fmt.Errorf("reading embedded %s template: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing embedded %s template: %w", name, err)
	}
	return tmpl, nil
}
