package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Zero-downtime restart: SIGUSR2 forks a replacement process that inherits
// the listening socket on fd 3, then the old process drains and exits.
// SIGTERM drains without replacement.

const (
	serverReadTimeout  = 60 * time.Second
	serverWriteTimeout = 60 * time.Second
	shutdownTimeout    = 30 * time.Second

	gracefulEnvKey  = "QUILLBOARD_GRACEFUL"
	inheritedFD     = 3
	inheritedFDName = "quillboard-listener"
)

type gracefulServer struct {
	httpServer *http.Server
	listener   net.Listener
	inherited  bool
	signals    chan os.Signal
	drained    chan struct{}
}

func newGracefulServer(addr string, handler http.Handler) *gracefulServer {
	return &gracefulServer{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  serverReadTimeout,
			WriteTimeout: serverWriteTimeout,
		},
		inherited: os.Getenv(gracefulEnvKey) != "",
		signals:   make(chan os.Signal, 1),
		drained:   make(chan struct{}),
	}
}

// GraceServer serves HTTP on addr until a SIGTERM drain or a SIGUSR2
// handover completes.
func GraceServer(addr string, handler http.Handler) error {
	srv := newGracefulServer(addr, handler)
	ln, err := srv.listen(addr)
	if err != nil {
		return err
	}
	srv.listener = ln

	go srv.watchSignals()
	err = srv.httpServer.Serve(srv.listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-srv.drained
		return nil
	}
	return err
}

// listen reuses the inherited socket when this process is the SIGUSR2
// replacement, otherwise it binds a fresh one.
func (srv *gracefulServer) listen(addr string) (net.Listener, error) {
	if srv.inherited {
		ln, err := net.FileListener(os.NewFile(inheritedFD, inheritedFDName))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *gracefulServer) watchSignals() {
	signal.Notify(srv.signals, syscall.SIGTERM, syscall.SIGUSR2)
	for sig := range srv.signals {
		switch sig {
		case syscall.SIGTERM:
			Sugar.Info("SIGTERM received, draining HTTP server")
			srv.drain()
			return
		case syscall.SIGUSR2:
			Sugar.Info("SIGUSR2 received, starting replacement process")
			pid, err := srv.forkReplacement()
			if err != nil {
				Sugar.Errorf("replacement start failed, continuing to serve: %v", err)
				continue
			}
			Sugar.Infof("replacement running pid=%d, draining old server", pid)
			srv.drain()
			return
		}
	}
}

func (srv *gracefulServer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.httpServer.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown: %v", err)
	} else {
		Sugar.Info("HTTP server drained")
	}
	close(srv.drained)
}

// forkReplacement re-execs this binary with the listener socket passed as
// fd 3 and the graceful marker set in its environment.
func (srv *gracefulServer) forkReplacement() (int, error) {
	tcpListener, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is %T, cannot hand over", srv.listener)
	}
	file, err := tcpListener.File()
	if err != nil {
		return 0, fmt.Errorf("listener fd: %w", err)
	}

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvKey+"=1" {
			env = append(env, e)
		}
	}
	env = append(env, gracefulEnvKey+"=1")

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}
