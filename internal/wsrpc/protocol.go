// Package wsrpc is the master<->worker transport (SPEC_FULL §4, "Domain-stack
// addition: transport for the RPC surface"). It generalizes the teacher's
// games_ws_backend/hub package from a one-way game-message hub into a
// bidirectional call/response hub: each side can invoke RPCs on the other
// over the same persistent gorilla/websocket connection, correlated by a
// google/uuid request ID.
//
// Sign convention: every gradient this protocol carries is the worker's
// computed ∇L (not -∇L); the coordinator always subtracts it from the
// current weights (spec.md §9 "Open question").
package wsrpc

import "encoding/json"

// Method names for the RPCs spec.md §6 defines.
const (
	MethodForward           = "forward"
	MethodGradient           = "gradient"
	MethodInitAsync          = "initAsync"
	MethodStopAsync          = "stopAsync"
	MethodRegisterSlavePeer  = "registerSlave"
	MethodUnregisterSlavePeer = "unregisterSlave"
	MethodUpdateGrad         = "updateGrad"
)

// Envelope is the wire message. A request has Method set and Response
// false; the corresponding reply echoes the same ID with Response true.
type Envelope struct {
	ID       string          `json:"id"`
	Method   string          `json:"method,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Response bool            `json:"response"`
	Err      string          `json:"error,omitempty"`
}

// ForwardRequest is the payload for MethodForward.
type ForwardRequest struct {
	Lo      int       `json:"lo"`
	Hi      int       `json:"hi"`
	Weights []float64 `json:"weights"`
}

// ForwardResponse is the reply payload for MethodForward.
type ForwardResponse struct {
	Predictions []float64 `json:"predictions"`
}

// GradientRequest is the payload for MethodGradient.
type GradientRequest struct {
	Lo      int       `json:"lo"`
	Hi      int       `json:"hi"`
	Weights []float64 `json:"weights"`
}

// GradientResponse is the reply payload for MethodGradient.
type GradientResponse struct {
	Grad          []float64 `json:"grad"`
	StartedAtUnix int64     `json:"startedAtUnix"`
	EndedAtUnix   int64     `json:"endedAtUnix"`
}

// InitAsyncRequest is the payload for MethodInitAsync.
type InitAsyncRequest struct {
	Weights    []float64 `json:"weights"`
	Lo         int       `json:"lo"`
	Hi         int       `json:"hi"`
	BatchSize  int       `json:"batchSize"`
}

// RegisterSlaveRequest is the payload for MethodRegisterSlavePeer,
// MethodUnregisterSlavePeer (gossip) and the inbound registerSlave/
// unregisterSlave RPCs workers issue to the master.
type RegisterSlaveRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// UpdateGradRequest is the payload for the inbound MethodUpdateGrad RPC.
type UpdateGradRequest struct {
	GradUpdate []float64 `json:"gradUpdate"`
}

// Ack is the empty acknowledgement payload shared by several RPCs.
type Ack struct{}
