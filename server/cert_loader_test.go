package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCert writes a self-signed key pair for cn and returns the DER certificate.
func writeCert(t *testing.T, certFile, keyFile, cn string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return der
}

func touch(t *testing.T, at time.Time, files ...string) {
	t.Helper()
	for _, f := range files {
		require.NoError(t, os.Chtimes(f, at, at))
	}
}

func TestCertLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	first := writeCert(t, certFile, keyFile, "first")

	loader, err := NewCertLoader(certFile, keyFile, quietLogger())
	require.NoError(t, err)

	cert, err := loader.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, first, cert.Certificate[0])

	base := time.Now()
	second := writeCert(t, certFile, keyFile, "second")
	touch(t, base.Add(time.Hour), certFile, keyFile)

	// Within the check interval the loaded certificate is served.
	cert, err = loader.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, first, cert.Certificate[0])

	loader.now = func() time.Time { return base.Add(2 * time.Minute) }
	cert, err = loader.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, second, cert.Certificate[0])

	// A broken replacement keeps the previous certificate.
	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0o600))
	touch(t, base.Add(3*time.Hour), certFile)
	loader.now = func() time.Time { return base.Add(4 * time.Minute) }
	cert, err = loader.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, second, cert.Certificate[0])
}

func TestNewCertLoader_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCertLoader(filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key"), quietLogger())
	assert.ErrorContains(t, err, "failed to load key pair")
}

func TestServer_WithTLS(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	writeCert(t, certFile, keyFile, "cloudops")

	f := newFixture(t, WithTLS(certFile, keyFile))
	assert.NotNil(t, f.server.certLoader)
}
