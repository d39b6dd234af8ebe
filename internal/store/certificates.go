package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"markd/types"
)

type certificatesDoc struct {
	Certificates []types.Certificate `json:"certificates"`
}

// LoadCertificates reads the certificate registry.
func (s *Store) LoadCertificates() ([]types.Certificate, error) {
	var doc certificatesDoc
	err := readJSON(s.path(certsFile), &doc)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Certificates, nil
}

// SaveCertificates writes the registry and keeps the flat thumbprint list
// in sync with it. Duplicate thumbprints are rejected.
func (s *Store) SaveCertificates(certs []types.Certificate) error {
	seen := map[string]string{}
	for _, c := range certs {
		tp := strings.ToLower(c.Thumbprint)
		if prev, dup := seen[tp]; dup {
			return fmt.Errorf("thumbprint %s shared by %q and %q", tp, prev, c.Name)
		}
		seen[tp] = c.Name
	}
	if err := writeJSONAtomic(s.path(certsFile), certificatesDoc{Certificates: certs}); err != nil {
		return err
	}
	var sb strings.Builder
	for _, c := range certs {
		sb.WriteString(strings.ToLower(c.Thumbprint))
		sb.WriteByte('\n')
	}
	return writeFileAtomic(s.path(thumbprintsFile), []byte(sb.String()))
}

// cert_inns.json layout: {cert_key: [{outlet: inn}]}. Each list element is
// a single-entry object; the shape is kept for compatibility with existing
// deployments.
type outletPairsDoc map[string][]map[string]string

// LoadOutletPairs returns the persisted (outlet, tax identifier) pairs for
// a certificate key, in file order.
func (s *Store) LoadOutletPairs(certKey string) ([]types.OutletPair, error) {
	var doc outletPairsDoc
	err := readJSON(s.path(certINNsFile), &doc)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pairs []types.OutletPair
	for _, entry := range doc[certKey] {
		for outlet, inn := range entry {
			pairs = append(pairs, types.OutletPair{Outlet: outlet, INN: inn})
		}
	}
	return pairs, nil
}

// SaveOutletPair persists a newly provisioned pair for a certificate,
// appending to any existing list.
func (s *Store) SaveOutletPair(certKey string, pair types.OutletPair) error {
	doc := outletPairsDoc{}
	if err := readJSON(s.path(certINNsFile), &doc); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	doc[certKey] = append(doc[certKey], map[string]string{pair.Outlet: pair.INN})
	return writeJSONAtomic(s.path(certINNsFile), doc)
}

// UseMCHD reports whether sign-in for the certificate should carry the
// proxy-authority (МЧД) flag.
func (s *Store) UseMCHD(certName string) bool {
	var doc map[string]bool
	if err := readJSON(s.path(mchdFile), &doc); err != nil {
		return false
	}
	return doc[certName]
}

// SetMCHD records the proxy-authority flag for a certificate.
func (s *Store) SetMCHD(certName string, enabled bool) error {
	doc := map[string]bool{}
	if err := readJSON(s.path(mchdFile), &doc); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	doc[certName] = enabled
	return writeJSONAtomic(s.path(mchdFile), doc)
}
