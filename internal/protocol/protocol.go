// Package protocol defines the wire format between the strata CLI and the
// strata daemon.
//
// Messages are newline-delimited JSON envelopes. The envelope names the
// command and carries the command-specific payload as raw JSON, decoded by
// the receiver once the command is known.
package protocol

import (
	"encoding/json"
	"fmt"
)

// A command name carried in an envelope.
type Command string

const (
	CmdBuild    Command = "build"
	CmdStatus   Command = "status"
	CmdShutdown Command = "shutdown"

	CmdOK    Command = "ok"
	CmdError Command = "error"
)

// The outer message frame.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Asks the daemon to run the build pipeline.
type BuildRequest struct {
	Manifest   string            `json:"manifest"`
	AppDir     string            `json:"app_dir,omitempty"`
	Base       string            `json:"base,omitempty"`
	Output     string            `json:"output"`
	Reference  string            `json:"reference"`
	Port       int               `json:"port,omitempty"`
	Entrypoint []string          `json:"entrypoint,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Platform   string            `json:"platform,omitempty"`
}

// Reports a completed build.
type BuildResult struct {
	Image       string `json:"image"`
	Digest      string `json:"digest"`
	Size        int64  `json:"size"`
	Fingerprint string `json:"fingerprint"`
	CacheHit    bool   `json:"cache_hit"`
}

// Reports daemon status.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"`
}

// Carries a command failure back to the client.
type ErrorResult struct {
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// Serializes a command and payload into an envelope.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", cmd, err)
		}
		env.Payload = data
	}

	return json.Marshal(env)
}

// Parses an envelope from a single wire message. The payload is returned
// raw; use [DecodePayload] once the command is known.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("decode envelope: missing command")
	}
	return &env, env.Payload, nil
}

// Decodes a raw payload into the command's request or result type.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &v, nil
}
