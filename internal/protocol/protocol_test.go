package protocol

import (
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(CmdBuild, &BuildRequest{
		Manifest:  "strata.yaml",
		Output:    "dist",
		Reference: "svc:1.0",
		Port:      9000,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Command != CmdBuild {
		t.Fatalf("command = %q, want %q", env.Command, CmdBuild)
	}

	req, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if req.Manifest != "strata.yaml" || req.Port != 9000 {
		t.Fatalf("request = %+v", req)
	}
}

func TestDecodeRejectsMissingCommand(t *testing.T) {
	if _, _, err := Decode([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("decode accepted an envelope without a command")
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	req, err := DecodePayload[BuildRequest](nil)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if req.Manifest != "" {
		t.Fatalf("request = %+v, want zero value", req)
	}
}
