package e2e

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"replkv/internal/api"
	"replkv/internal/engine"
	"replkv/internal/server"
)

type systemUnderTest struct {
	// Addr is the protocol address of the server.
	Addr string
	// GatewayURL is an HTTP gateway in front of Addr.
	GatewayURL string
	// DataPath is the server's log file; empty for an external server.
	DataPath string
	shutdown func()
	restart  func(t *testing.T)
}

func (s *systemUnderTest) Close() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

func startSystemUnderTest(t *testing.T) *systemUnderTest {
	t.Helper()

	var sut *systemUnderTest
	switch {
	case os.Getenv("KV_SERVER_CMD") != "":
		var err error
		sut, err = startExternalServer(t, os.Getenv("KV_SERVER_CMD"))
		if err != nil {
			t.Fatalf("start external server: %v", err)
		}
	case os.Getenv("KV_SERVER_ADDR") != "":
		addr := os.Getenv("KV_SERVER_ADDR")
		t.Logf("KV_SERVER_ADDR set; using existing server at %s", addr)
		sut = &systemUnderTest{Addr: addr}
	default:
		sut = startInProcess(t, server.DefaultConfig())
	}

	attachGateway(t, sut)
	return sut
}

// attachGateway serves the HTTP gateway for sut.Addr from the test process.
func attachGateway(t *testing.T, sut *systemUnderTest) {
	t.Helper()
	pool, err := api.NewPool(sut.Addr, 4, 2*time.Second)
	if err != nil {
		t.Fatalf("gateway pool: %v", err)
	}
	logger, _ := test.NewNullLogger()
	gw := httptest.NewServer(api.NewServer(pool, logger))
	sut.GatewayURL = gw.URL

	inner := sut.shutdown
	sut.shutdown = func() {
		gw.Close()
		pool.Close()
		if inner != nil {
			inner()
		}
	}
}

// inProcess is a server plus its store, both restartable on the same
// address and log file.
type inProcess struct {
	cfg    server.Config
	path   string
	srv    *server.Server
	shared *engine.Shared
	done   chan error
}

func (p *inProcess) start(t *testing.T, l net.Listener) {
	t.Helper()
	logger, _ := test.NewNullLogger()

	st, err := engine.Open(p.path, engine.WithLogger(logger))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	p.shared = engine.NewShared(st)
	p.srv, err = server.New(p.cfg, p.shared, server.WithLogger(logger))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	p.done = make(chan error, 1)
	go func() { p.done <- p.srv.Serve(l) }()
}

func (p *inProcess) stop() {
	_ = p.srv.Close()
	if err := <-p.done; !errors.Is(err, server.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "serve returned %v\n", err)
	}
	_ = p.shared.Close()
}

func startInProcess(t *testing.T, cfg server.Config) *systemUnderTest {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &inProcess{cfg: cfg, path: filepath.Join(t.TempDir(), "kv.db")}
	p.start(t, l)
	addr := l.Addr().String()

	return &systemUnderTest{
		Addr:     addr,
		DataPath: p.path,
		shutdown: p.stop,
		restart: func(t *testing.T) {
			t.Helper()
			p.stop()
			l, err := net.Listen("tcp", addr)
			if err != nil {
				t.Fatalf("relisten on %s: %v", addr, err)
			}
			p.start(t, l)
		},
	}
}

func startExternalServer(t *testing.T, cmdStr string) (*systemUnderTest, error) {
	t.Helper()

	dataDir, err := os.MkdirTemp("", "replkv-e2e-data-*")
	if err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dataPath := filepath.Join(dataDir, "kv.db")

	addr, err := freeAddr()
	if err != nil {
		return nil, fmt.Errorf("pick free addr: %w", err)
	}
	host, port, _ := net.SplitHostPort(addr)

	launcher := func() (*exec.Cmd, context.CancelFunc, error) {
		ctx, cancel := context.WithCancel(context.Background())
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
		cmd.Env = append(os.Environ(),
			"REPLKV_ADDR="+host,
			"REPLKV_PORT="+port,
			"REPLKV_DATA="+dataPath,
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("cmd start: %w", err)
		}
		if err := waitForReady(addr, 10*time.Second); err != nil {
			_ = cmd.Process.Kill()
			cancel()
			return nil, nil, fmt.Errorf("wait for ready: %w", err)
		}
		return cmd, cancel, nil
	}

	cmd, cancel, err := launcher()
	if err != nil {
		return nil, err
	}

	kill := func() {
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
		cancel()
	}

	return &systemUnderTest{
		Addr:     addr,
		DataPath: dataPath,
		shutdown: func() {
			kill()
			_ = os.RemoveAll(dataDir)
		},
		restart: func(t *testing.T) {
			t.Helper()
			kill()
			var err error
			cmd, cancel, err = launcher()
			if err != nil {
				t.Fatalf("restart server: %v", err)
			}
		},
	}, nil
}

func waitForReady(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", addr, timeout)
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}
