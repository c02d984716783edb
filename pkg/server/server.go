// Package server implements the daemon's TLS front end: a line protocol for
// workstations to request and release pool accounts, plus the periodic
// maintenance pass that keeps the pool healthy.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/crutech/nydus/pkg/logger"
	"github.com/crutech/nydus/pkg/pool"
	"github.com/crutech/nydus/pkg/validation"
)

const (
	// readTimeout bounds how long a client may take to send its request
	// line.
	readTimeout = 5 * time.Second

	// maxRequestBytes caps the request line, newline included.
	maxRequestBytes = 1024

	verbRequest = "REQUEST"
	verbRelease = "RELEASE"
)

// Server accepts workstation connections and answers the two protocol verbs.
// Responses carry the fleet's pinned game version so clients launch the
// build the accounts were authenticated for.
type Server struct {
	listenAddr string
	certFile   string
	keyFile    string
	mcVersion  string
	engine     *pool.Engine

	// exit is called when the pool file can no longer be persisted.
	// Replaceable for tests; defaults to terminating the process.
	exit func(format string, v ...any)
}

// New creates a server over the given pool engine.
func New(listenAddr, certFile, keyFile, mcVersion string, engine *pool.Engine) *Server {
	return &Server{
		listenAddr: listenAddr,
		certFile:   certFile,
		keyFile:    keyFile,
		mcVersion:  mcVersion,
		engine:     engine,
		exit:       logger.Fatalf,
	}
}

// Run listens until ctx is cancelled, serving each connection in its own
// goroutine and running maint alongside when it is non-nil.
func (s *Server) Run(ctx context.Context, maint *Maintainer) error {
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load server certificate: %w", err)
	}
	listener, err := tls.Listen("tcp", s.listenAddr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	logger.Infof("Listening on %s", s.listenAddr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})
	if maint != nil {
		group.Go(func() error {
			maint.Run(ctx)
			return nil
		})
	}
	group.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept failed: %w", err)
			}
			go s.handleConn(conn)
		}
	})
	return group.Wait()
}

// handleConn serves one connection: a single request line, at most one
// response line, then close. Protocol violations close the connection with
// no response so a probing client learns nothing.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	clientAddr, err := sourceIP(conn)
	if err != nil {
		logger.Warnf("Rejecting connection with unusable source address: %v", err)
		return
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		logger.Warnf("Failed to set read deadline for %s: %v", clientAddr, err)
		return
	}
	line, ok := readRequestLine(conn)
	if !ok {
		logger.Debugf("Dropping malformed or overlong request from %s", clientAddr)
		return
	}

	switch verb, arg := splitRequest(line); verb {
	case verbRequest:
		s.handleRequest(conn, clientAddr, arg)
	case verbRelease:
		if arg != "" {
			logger.Debugf("Dropping RELEASE with trailing data from %s", clientAddr)
			return
		}
		s.handleRelease(clientAddr)
	default:
		logger.Debugf("Dropping unknown verb from %s", clientAddr)
	}
}

func (s *Server) handleRequest(conn net.Conn, clientAddr, clientUser string) {
	if validation.ValidateSystemUsername(clientUser) != nil {
		logger.Debugf("Dropping REQUEST with bad username from %s", clientAddr)
		return
	}

	record, err := s.engine.Allocate(clientAddr, clientUser)
	if errors.Is(err, pool.ErrSaveFailed) {
		s.exit("Cannot persist pool file: %v", err)
		return
	}
	if errors.Is(err, pool.ErrNoFreeRecord) {
		logger.Warnf("Pool exhausted; turning away %s@%s", clientUser, clientAddr)
		return
	}
	if err != nil {
		logger.Warnf("Refusing allocation for %s@%s: %v", clientUser, clientAddr, err)
		return
	}

	profile := record.Bundle().Profile()
	response := fmt.Sprintf("%s:%s:%s:%s\n", s.mcVersion, profile.Name, profile.UUID, profile.Token)
	if _, err := io.WriteString(conn, response); err != nil {
		logger.Warnf("Failed to answer %s: %v", clientAddr, err)
		return
	}
	logger.Infof("Allocated %s to %s@%s", profile.Name, clientUser, clientAddr)
}

func (s *Server) handleRelease(clientAddr string) {
	released, err := s.engine.ReleaseByAddr(clientAddr)
	if errors.Is(err, pool.ErrSaveFailed) {
		s.exit("Cannot persist pool file: %v", err)
		return
	}
	if err != nil {
		logger.Warnf("Failed to release accounts for %s: %v", clientAddr, err)
		return
	}
	logger.Infof("Released %d account(s) held by %s", released, clientAddr)
}

// sourceIP extracts the client's IP from the connection. The protocol never
// trusts an address carried in the request line.
func sourceIP(conn net.Conn) (string, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return "", err
	}
	if err := validation.ValidateIPAddr(host); err != nil {
		return "", err
	}
	return host, nil
}

// readRequestLine reads one newline-terminated line of at most
// maxRequestBytes UTF-8 bytes. Anything else is a protocol violation.
func readRequestLine(conn net.Conn) (string, bool) {
	limited := &io.LimitedReader{R: conn, N: maxRequestBytes + 1}
	line, err := bufio.NewReaderSize(limited, maxRequestBytes+1).ReadString('\n')
	if err != nil {
		return "", false
	}
	if len(line) > maxRequestBytes {
		return "", false
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	if !utf8.ValidString(line) {
		return "", false
	}
	return line, true
}

// splitRequest splits a request line into its verb and optional argument.
func splitRequest(line string) (verb, arg string) {
	verb, arg, _ = strings.Cut(line, " ")
	return verb, strings.TrimSpace(arg)
}
