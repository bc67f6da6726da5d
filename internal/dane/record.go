// Package dane models the TLSA certificate associations managed by this
// system and computes the public-key digest they carry.
package dane

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/miekg/dns"
)

// Parameters of managed association records. Only "domain-issued certificate,
// full validation" associations (usage 1) are ever created or altered; usage 3
// records belong to the operator and must survive every mutation untouched.
const (
	ManagedUsage   = 1
	SelectorPubKey = 1
	MatchSHA256    = 1
)

// Record is one TLSA association line in a zone.
type Record struct {
	Name         string // owner name, e.g. "_443._tcp.example.com."
	Usage        uint8
	Selector     uint8
	MatchingType uint8
	Digest       string // lowercase hex
	Retiring     bool
}

// Managed reports whether the record belongs to the managed usage class.
func (r Record) Managed() bool { return r.Usage == ManagedUsage }

// Line renders the record in its canonical zone-file form, without any
// trailing status marker.
func (r Record) Line() string {
	return fmt.Sprintf("%s\tIN\tTLSA\t%d %d %d %s",
		r.Name, r.Usage, r.Selector, r.MatchingType, r.Digest)
}

// Endpoints returns the TLSA owner names managed for a domain: the root
// domain and its www alias for every configured port. The pair shares one
// certificate, so both roll together.
func Endpoints(domain string, ports []int) []string {
	names := make([]string, 0, 2*len(ports))
	for _, port := range ports {
		names = append(names,
			fmt.Sprintf("_%d._tcp.%s", port, dns.Fqdn(domain)),
			fmt.Sprintf("_%d._tcp.www.%s", port, dns.Fqdn(domain)),
		)
	}
	return names
}

// CertificateDigest computes the association digest for the certificate at
// path: the SHA-256 of the certificate's public key in its canonical
// SubjectPublicKeyInfo encoding, as lowercase hex. Hashing the key rather
// than the whole certificate keeps the digest stable across re-issuance with
// the same key pair.
func CertificateDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading certificate %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return "", fmt.Errorf("certificate %s: no PEM block found", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parsing certificate %s: %w", path, err)
	}
	digest, err := dns.CertificateToDANE(SelectorPubKey, MatchSHA256, cert)
	if err != nil {
		return "", fmt.Errorf("computing digest for %s: %w", path, err)
	}
	return strings.ToLower(digest), nil
}
