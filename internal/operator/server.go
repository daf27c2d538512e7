// Package operator implements the node's out-of-band control socket: a
// Unix domain socket accepting newline-delimited JSON commands to inspect
// or override a peer's trust state, or force an immediate re-review of a
// slash proposal. Adapted directly from the teacher's operator socket
// server — same protocol shape, connection limits, and timeouts — with the
// PID-keyed process registry replaced by a node-ID-keyed trust registry.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/rodiolabs/oraclenode/internal/model"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// TrustRegistry is the interface the operator server uses to read and
// override node trust state. internal/reputation.System implements it.
type TrustRegistry interface {
	Snapshot(nodeID string) model.NodeRecord
	Pin(nodeID string, state model.TrustState)
	Unpin(nodeID string)
	IsPinned(nodeID string) bool
	ListAll() []model.NodeRecord
}

// SlashReviewer forces an out-of-band re-evaluation of a slash proposal,
// bypassing the normal polling cadence.
type SlashReviewer interface {
	ProposeSlash(ctx context.Context, target string, reason model.SlashReason) (*model.SlashRecord, error)
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd      string `json:"cmd"` // status | pin | unpin | list | force-review
	NodeID   string `json:"node_id,omitempty"`
	State    string `json:"state,omitempty"`  // target trust state for pin
	Reason   string `json:"reason,omitempty"` // slash reason for force-review
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK       bool                `json:"ok"`
	Error    string              `json:"error,omitempty"`
	NodeID   string              `json:"node_id,omitempty"`
	State    string              `json:"state,omitempty"`
	Pinned   bool                `json:"pinned,omitempty"`
	Nodes    []model.NodeRecord  `json:"nodes,omitempty"`
	Slash    *model.SlashRecord  `json:"slash,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	registry   TrustRegistry
	reviewer   SlashReviewer
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer creates an operator Server.
func NewServer(socketPath string, registry TrustRegistry, reviewer SlashReviewer, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		registry:   registry,
		reviewer:   reviewer,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	if s.log != nil {
		s.log.Info("operator socket listening", zap.String("path", s.socketPath))
	}

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				if s.log != nil {
					s.log.Error("operator: accept error", zap.Error(err))
				}
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			if s.log != nil {
				s.log.Warn("operator: max connections reached, rejecting")
			}
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		if s.log != nil {
			s.log.Warn("operator: read error", zap.Error(err))
		}
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(context.Background(), req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Cmd {
	case "status":
		return s.cmdStatus(req)
	case "pin":
		return s.cmdPin(req)
	case "unpin":
		return s.cmdUnpin(req)
	case "list":
		return s.cmdList()
	case "force-review":
		return s.cmdForceReview(ctx, req)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdStatus(req Request) Response {
	if req.NodeID == "" {
		return Response{OK: false, Error: "node_id required for status"}
	}
	rec := s.registry.Snapshot(req.NodeID)
	return Response{OK: true, NodeID: req.NodeID, State: rec.Trust.String(), Pinned: s.registry.IsPinned(req.NodeID)}
}

func (s *Server) cmdPin(req Request) Response {
	if req.NodeID == "" {
		return Response{OK: false, Error: "node_id required for pin"}
	}
	state, err := parseTrustState(req.State)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	s.registry.Pin(req.NodeID, state)
	if s.log != nil {
		s.log.Info("operator: node trust state pinned", zap.String("node_id", req.NodeID), zap.String("state", state.String()))
	}
	return Response{OK: true, NodeID: req.NodeID, State: state.String()}
}

func (s *Server) cmdUnpin(req Request) Response {
	if req.NodeID == "" {
		return Response{OK: false, Error: "node_id required for unpin"}
	}
	s.registry.Unpin(req.NodeID)
	if s.log != nil {
		s.log.Info("operator: node trust state unpinned", zap.String("node_id", req.NodeID))
	}
	return Response{OK: true, NodeID: req.NodeID}
}

func (s *Server) cmdList() Response {
	return Response{OK: true, Nodes: s.registry.ListAll()}
}

func (s *Server) cmdForceReview(ctx context.Context, req Request) Response {
	if req.NodeID == "" {
		return Response{OK: false, Error: "node_id required for force-review"}
	}
	if s.reviewer == nil {
		return Response{OK: false, Error: "slash review not configured on this node"}
	}
	reason := model.SlashReason(req.Reason)
	rec, err := s.reviewer.ProposeSlash(ctx, req.NodeID, reason)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	if s.log != nil {
		s.log.Info("operator: forced slash proposal review", zap.String("node_id", req.NodeID), zap.String("reason", req.Reason))
	}
	return Response{OK: true, NodeID: req.NodeID, Slash: rec}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func parseTrustState(name string) (model.TrustState, error) {
	switch name {
	case "trusted":
		return model.TrustTrusted, nil
	case "watched":
		return model.TrustWatched, nil
	case "suspended":
		return model.TrustSuspended, nil
	case "slashed":
		return model.TrustSlashed, nil
	default:
		return model.TrustTrusted, fmt.Errorf("unknown trust state %q (valid: trusted watched suspended slashed)", name)
	}
}
