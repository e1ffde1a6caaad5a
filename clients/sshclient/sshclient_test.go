package sshclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/nomis52/cloudops/operation"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "test")
	require.NoError(t, err)
	return string(pem.EncodeToMemory(block))
}

func TestNew_InvalidKey(t *testing.T) {
	_, err := New("127.0.0.1:22", "root", "not a key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse private key")
	assert.NotErrorIs(t, err, operation.ErrConnectivity)
}

func TestNew_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = New(addr, "root", testKeyPEM(t), WithDialTimeout(time.Second))
	assert.ErrorIs(t, err, operation.ErrConnectivity)
}
