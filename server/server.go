// Package server exposes the engine over a length-prefixed JSON protocol:
// each message is a 4-byte big-endian length followed by that many bytes
// of UTF-8 JSON. One goroutine serves each connection; the engine itself
// serializes the work.
package server

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/engine"
)

// MaxMessage bounds one framed message.
const MaxMessage = 64 << 20

// Server accepts connections and dispatches framed requests.
type Server struct {
	eng *engine.Engine

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

// New wraps an engine.
func New(eng *engine.Engine) *Server {
	return &Server{eng: eng}
}

// Listen binds the address.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	klog.Infof("server: listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until Shutdown closes the listener.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve before Listen")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, "accepting connection")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Shutdown closes the listener and drains in-flight connections.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.wg.Wait()
	klog.Infof("server: drained")
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	id := uuid.NewString()[:8]
	klog.V(1).Infof("server[%s]: connection from %s", id, conn.RemoteAddr())
	for {
		payload, err := readFrame(conn)
		if err == io.EOF {
			return
		}
		if err != nil {
			klog.V(1).Infof("server[%s]: read: %v", id, err)
			// Framing is broken; an error frame is best effort.
			_ = writeFrame(conn, errorPayload(err))
			return
		}
		klog.V(2).Infof("server[%s]: request of %s", id, humanize.IBytes(uint64(len(payload))))
		response := s.dispatch(payload)
		if err = writeFrame(conn, response); err != nil {
			klog.V(1).Infof("server[%s]: write: %v", id, err)
			return
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "reading frame header")
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxMessage {
		return nil, errors.Errorf("message of %s exceeds the %s limit",
			humanize.IBytes(uint64(n)), humanize.IBytes(MaxMessage))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "reading frame body")
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessage {
		return errors.Errorf("response of %s exceeds the frame limit", humanize.IBytes(uint64(len(payload))))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "writing frame header")
	}
	_, err := w.Write(payload)
	return errors.Wrap(err, "writing frame body")
}
