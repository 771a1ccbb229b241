package rpcbridge

import (
	"encoding/json"

	"github.com/codeharbor/sandboxexec/model"
)

// Kind identifies the payload shape of an Envelope. There is no "done"
// kind: a worker's final result travels on the model.ResultMarker line
// instead of in an Envelope.
type Kind string

const (
	KindBootstrap Kind = "bootstrap"
	KindReady     Kind = "ready"
	KindInvoke    Kind = "invoke"
	KindResult    Kind = "result"
	KindError     Kind = "error"
	KindHeartbeat Kind = "heartbeat"
)

// Envelope is the outermost JSON shape of every frame exchanged over
// the bridge: a Kind discriminator plus a raw Payload decoded
// according to that Kind.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// BootstrapPayload is sent host -> worker exactly once, at the start of
// an execution.
type BootstrapPayload struct {
	Code         string             `json:"code"`
	Context      model.Context      `json:"context"`
	ToolManifest model.ToolManifest `json:"toolManifest"`
	TimeoutMs    int64              `json:"timeoutMs"`

	// AllowedReadPaths is the filesystem read allow-list in effect for
	// this execution, already narrowed by any permissionLabel passed to
	// execute(); empty means no read capability at all, per RF-1's
	// deny-by-default posture.
	AllowedReadPaths []string `json:"allowedReadPaths,omitempty"`
}

// InvokePayload is sent worker -> host when sandboxed code calls a tool
// proxy method. CallID is unique per execution and correlates with the
// ResultPayload/ErrorPayload that answers it.
type InvokePayload struct {
	CallID string         `json:"callId"`
	Server string         `json:"server"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
}

// ResultPayload answers a successful InvokePayload, host -> worker.
type ResultPayload struct {
	CallID string `json:"callId"`
	Value  any    `json:"value"`
}

// ErrorPayload answers a failed InvokePayload, host -> worker.
type ErrorPayload struct {
	CallID string             `json:"callId"`
	Error  model.MCPToolError `json:"error"`
}

// Encode marshals v into an Envelope of the given kind.
func Encode(kind Kind, v any) (Envelope, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: kind, Payload: raw}, nil
}

// Decode unmarshals e.Payload into dst.
func (e Envelope) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}
