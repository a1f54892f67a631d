package common

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

func NewCertPoolFromFiles(files ...string) (*x509.CertPool, error) {
	certPool := x509.NewCertPool()
	for _, file := range files {
		caCertRaw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		ok := certPool.AppendCertsFromPEM(caCertRaw)
		if !ok {
			return nil, fmt.Errorf("failed to add certificate %s to pool", file)
		}
	}
	return certPool, nil
}

// LoadOrGenerateCert loads the key pair from certFile and keyFile.
// A self-signed certificate for localhost is generated if both are empty.
func LoadOrGenerateCert(certFile string, keyFile string) (tls.Certificate, error) {
	if certFile == "" && keyFile == "" {
		return GenerateCert(), nil
	}
	return tls.LoadX509KeyPair(certFile, keyFile)
}

func GenerateCert() tls.Certificate {
	return GenerateCertFor([]string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("127.0.0.2")})
}

func GenerateCertFor(dnsNames []string, ipAddresses []net.IP) tls.Certificate {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(0, 0, 10),
		DNSNames:     dnsNames,
		IPAddresses:  ipAddresses,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		panic(err)
	}
	return tlsCert
}
