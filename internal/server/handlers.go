package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/stratabuild/strata/internal"
	"github.com/stratabuild/strata/internal/pipeline"
	"github.com/stratabuild/strata/internal/protocol"
)

// Handles a build command.
//
// Runs the full pipeline for the requested manifest. A failure names the
// pipeline stage it occurred in so the client can report where the build
// stopped.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	result, err := s.pipeline.Run(ctx, pipeline.Options{
		ManifestPath: req.Manifest,
		AppDir:       req.AppDir,
		Base:         req.Base,
		Output:       req.Output,
		Reference:    req.Reference,
		Port:         req.Port,
		Entrypoint:   req.Entrypoint,
		Env:          req.Env,
		Platform:     req.Platform,
	})
	if err != nil {
		resp := &protocol.ErrorResult{Message: err.Error()}
		var serr *pipeline.StageError
		if errors.As(err, &serr) {
			resp.Stage = string(serr.Stage)
		}
		s.respond(conn, protocol.CmdError, resp)
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.BuildResult{
		Image:       result.Image.Path,
		Digest:      result.Image.Digest.String(),
		Size:        result.Image.Size,
		Fingerprint: result.Fingerprint.String(),
		CacheHit:    result.CacheHit,
	})
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}
