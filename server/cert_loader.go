package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultCertCheckInterval = time.Minute

// CertLoader serves a TLS certificate that is reloaded when the certificate
// or key file changes on disk. Files are checked at most once per interval.
type CertLoader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	cert      *tls.Certificate
	loadedAt  time.Time
	lastCheck time.Time
}

// NewCertLoader loads the key pair and returns a CertLoader for it.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	loader := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger.With("component", "cert_loader"),
		interval: defaultCertCheckInterval,
		now:      time.Now,
	}

	if err := loader.reload(); err != nil {
		return nil, err
	}
	loader.lastCheck = loader.loadedAt
	return loader, nil
}

// GetCertificate is a callback for tls.Config.GetCertificate. A failed
// reload keeps serving the previous certificate.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	if l.now().Sub(l.lastCheck) < l.interval {
		defer l.mu.RUnlock()
		return l.cert, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Another caller may have checked while we waited for the lock.
	if l.now().Sub(l.lastCheck) < l.interval {
		return l.cert, nil
	}
	l.lastCheck = l.now()

	certStat, err := os.Stat(l.certFile)
	if err != nil {
		l.logger.Error("failed to stat cert file", "error", err)
		return l.cert, nil
	}
	keyStat, err := os.Stat(l.keyFile)
	if err != nil {
		l.logger.Error("failed to stat key file", "error", err)
		return l.cert, nil
	}

	if certStat.ModTime().After(l.loadedAt) || keyStat.ModTime().After(l.loadedAt) {
		if err := l.reload(); err != nil {
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return l.cert, nil
}

func (l *CertLoader) reload() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	l.cert = &cert
	l.loadedAt = l.now()
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
