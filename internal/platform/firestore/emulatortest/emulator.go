//go:build integration

// Package emulatortest starts a throwaway Firestore emulator in docker for integration tests.
package emulatortest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/khotaikhoan/storefront/internal/platform/config"
	pfirestore "github.com/khotaikhoan/storefront/internal/platform/firestore"
)

const image = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

// Start boots an emulator and returns a provider bound to it. The test is skipped when docker is
// not available.
func Start(t *testing.T) *pfirestore.Provider {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)

	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		image,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("start firestore emulator: %v - %s", err, out)
	}
	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
	})

	waitFor(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(config.FirestoreConfig{
		ProjectID:    "storefront-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitFor(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}
