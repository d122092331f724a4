package tlsroots

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var (
	testNow      = time.Now()
	testValidity = 24 * time.Hour
)

func TestNewCertReloader(t *testing.T) {
	certFile, keyFile := writeKeyPair(t, t.TempDir(), 1)

	r, err := NewCertReloader(certFile, keyFile)
	if err != nil {
		t.Fatalf("NewCertReloader() error = %v", err)
	}

	cert, err := ServerConfig(r).GetCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
}

func TestNewCertReloader_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewCertReloader(filepath.Join(dir, "nope.crt"), filepath.Join(dir, "nope.key")); err == nil {
		t.Error("expected error for nonexistent files")
	}

	bad := filepath.Join(dir, "bad.crt")
	if err := os.WriteFile(bad, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCertReloader(bad, bad); err == nil {
		t.Error("expected error for invalid pair")
	}
}

func TestCertReloader_ReloadKeepsOldOnFailure(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, 1)

	r, err := NewCertReloader(certFile, keyFile)
	if err != nil {
		t.Fatalf("NewCertReloader() error = %v", err)
	}
	before, _ := r.GetCertificate(nil)

	if err := os.WriteFile(certFile, []byte("truncated"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("Reload() expected error")
	}

	after, _ := r.GetCertificate(nil)
	if after != before {
		t.Error("failed reload replaced the certificate")
	}
}

func TestCertReloader_RunPicksUpChange(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, 1)

	r, err := NewCertReloader(certFile, keyFile,
		WithDebounce(10*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewCertReloader() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writeKeyPair(t, dir, 2)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cert, _ := r.GetCertificate(nil)
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err == nil && leaf.SerialNumber.Int64() == 2 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	cert, _ := r.GetCertificate(nil)
	leaf, _ := x509.ParseCertificate(cert.Certificate[0])
	if leaf.SerialNumber.Int64() != 2 {
		t.Errorf("serial = %d after rewrite, want 2", leaf.SerialNumber.Int64())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

// writeKeyPair writes a self-signed server pair with the given serial into dir.
func writeKeyPair(t *testing.T, dir string, serial int64) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             testNow.Add(-testValidity),
		NotAfter:              testNow.Add(testValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}

	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	// Key first so the cert write event sees a matching pair.
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatalf("WriteFile(key) error = %v", err)
	}
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644); err != nil {
		t.Fatalf("WriteFile(cert) error = %v", err)
	}
	return certFile, keyFile
}
