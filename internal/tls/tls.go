// Package tls provides the certificate for serving the HTTP API over HTTPS,
// either from a PEM file pair or generated in memory.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net"
	"time"
)

// Certificate sources reported by Load.
const (
	ModeFile       = "file"
	ModeSelfSigned = "self-signed"
)

const selfSignedValidity = 365 * 24 * time.Hour

var defaultHosts = []string{"localhost", "127.0.0.1"}

// GenerateSelfSignedPEM generates an ECDSA P-256 self-signed certificate
// valid for 1 year and returns it PEM-encoded. hosts become the SANs; IPs
// and DNS names are told apart automatically. With no hosts the
// certificate covers localhost and 127.0.0.1. The first host is the CN.
func GenerateSelfSignedPEM(hosts ...string) (certPEM, keyPEM []byte, err error) {
	if len(hosts) == 0 {
		hosts = defaultHosts
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   hosts[0],
			Organization: []string{"ebouqets"},
		},
		NotBefore: now,
		NotAfter:  now.Add(selfSignedValidity),

		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// GenerateSelfSignedCert is GenerateSelfSignedPEM parsed into a key pair.
// No files are written to disk.
func GenerateSelfSignedCert(hosts ...string) (*tls.Certificate, error) {
	certPEM, keyPEM, err := GenerateSelfSignedPEM(hosts...)
	if err != nil {
		return nil, err
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to create X509 key pair: %w", err)
	}
	return &cert, nil
}

// Load returns a server config for serve. With both paths set the pair is
// read from disk; otherwise a self-signed certificate for hosts is made in
// memory. The second result is ModeFile or ModeSelfSigned.
func Load(certFile, keyFile string, hosts ...string) (*tls.Config, string, error) {
	cert, mode, err := certificate(certFile, keyFile, hosts)
	if err != nil {
		return nil, "", err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, mode, nil
}

func certificate(certFile, keyFile string, hosts []string) (tls.Certificate, string, error) {
	if certFile == "" || keyFile == "" {
		cert, err := GenerateSelfSignedCert(hosts...)
		if err != nil {
			return tls.Certificate{}, "", fmt.Errorf("failed to generate self-signed cert: %w", err)
		}
		return *cert, ModeSelfSigned, nil
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return tls.Certificate{}, "", fmt.Errorf("certificate pair not found: %w", err)
	}
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return cert, ModeFile, nil
}

// HostsForListen returns the SANs a self-signed certificate needs for a
// listen address: the default loopback names plus the host, when it is a
// concrete one.
func HostsForListen(addr string) []string {
	hosts := append([]string(nil), defaultHosts...)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return hosts
	}
	switch host {
	case "", "0.0.0.0", "::", "localhost", "127.0.0.1":
		return hosts
	}
	return append(hosts, host)
}
