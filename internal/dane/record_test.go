package dane

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEndpoints(t *testing.T) {
	tests := []struct {
		domain string
		ports  []int
		want   []string
	}{
		{
			domain: "example.com",
			ports:  []int{443},
			want: []string{
				"_443._tcp.example.com.",
				"_443._tcp.www.example.com.",
			},
		},
		{
			domain: "example.com.",
			ports:  []int{443},
			want: []string{
				"_443._tcp.example.com.",
				"_443._tcp.www.example.com.",
			},
		},
		{
			domain: "example.org",
			ports:  []int{443, 8443},
			want: []string{
				"_443._tcp.example.org.",
				"_443._tcp.www.example.org.",
				"_8443._tcp.example.org.",
				"_8443._tcp.www.example.org.",
			},
		},
	}

	for _, tt := range tests {
		got := Endpoints(tt.domain, tt.ports)
		if len(got) != len(tt.want) {
			t.Errorf("Endpoints(%q, %v): got %v, want %v", tt.domain, tt.ports, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Endpoints(%q, %v)[%d]: got %q, want %q",
					tt.domain, tt.ports, i, got[i], tt.want[i])
			}
		}
	}
}

func TestRecordLine(t *testing.T) {
	digest := strings.Repeat("a", 64)
	r := Record{
		Name:         "_443._tcp.example.com.",
		Usage:        ManagedUsage,
		Selector:     SelectorPubKey,
		MatchingType: MatchSHA256,
		Digest:       digest,
	}
	want := "_443._tcp.example.com.\tIN\tTLSA\t1 1 1 " + digest
	if got := r.Line(); got != want {
		t.Errorf("Line(): got %q, want %q", got, want)
	}
}

func TestManaged(t *testing.T) {
	if !(Record{Usage: 1}).Managed() {
		t.Error("usage 1 must be managed")
	}
	if (Record{Usage: 3}).Managed() {
		t.Error("usage 3 must not be managed")
	}
}

// newTestCert writes a self-signed certificate to dir and returns its path
// together with the parsed certificate.
func newTestCert(t *testing.T, dir string) (string, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "cert.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0644); err != nil {
		t.Fatal(err)
	}
	return path, cert
}

func TestCertificateDigest(t *testing.T) {
	path, cert := newTestCert(t, t.TempDir())

	got, err := CertificateDigest(path)
	if err != nil {
		t.Fatalf("CertificateDigest: %v", err)
	}

	// The digest is the SHA-256 of the SubjectPublicKeyInfo, not of the
	// whole certificate.
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	want := hex.EncodeToString(sum[:])
	if got != want {
		t.Errorf("digest: got %s, want %s", got, want)
	}
	if len(got) != 64 {
		t.Errorf("expected a 64-character hex digest, got %d characters", len(got))
	}
}

func TestCertificateDigest_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cert.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := CertificateDigest(path); err == nil {
		t.Fatal("expected error for non-PEM input")
	}
}

func TestCertificateDigest_MissingFile(t *testing.T) {
	if _, err := CertificateDigest(filepath.Join(t.TempDir(), "absent.pem")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
