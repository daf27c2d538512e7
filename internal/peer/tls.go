package peer

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSMaterial names the certificate, key, and CA bundle used for mutual
// authentication between peer collectors. Any key type that
// tls.LoadX509KeyPair accepts is used as is; these keys are separate from
// the HMAC key nodes sign readings with.
type TLSMaterial struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("peer: read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("peer: no certificates parsed from %s", caFile)
	}
	return pool, nil
}

// buildServerTLS builds a TLS 1.3-only config requiring and verifying a
// client certificate signed by the configured CA.
func buildServerTLS(m TLSMaterial) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(m.CertFile, m.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("peer: load server keypair: %w", err)
	}
	caPool, err := loadCAPool(m.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    caPool,
	}, nil
}

// buildClientTLS builds the dialer-side counterpart: presents this node's
// own certificate and verifies the peer against the same CA bundle.
func buildClientTLS(m TLSMaterial, serverName string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(m.CertFile, m.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("peer: load client keypair: %w", err)
	}
	caPool, err := loadCAPool(m.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ServerName:   serverName,
	}, nil
}
