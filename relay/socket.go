// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "github.com/paseo-dev/paseo/lib/wsconn"

// Close codes sent by the relay.
const (
	CloseGoingAway         = 1001
	ClosePolicyViolation   = 1008
	CloseInternalError     = 1011
	CloseServiceRestarting = 1012
)

// Close reasons paired with the codes above.
const (
	ReasonReplaced            = "Replaced by new connection"
	ReasonControlUnresponsive = "Control unresponsive"
	ReasonControlSendFailed   = "Control send failed"
	ReasonSendFailed          = "Send failed"
	ReasonClientDisconnected  = "Client disconnected"
	ReasonShuttingDown        = "Server shutting down"
	ReasonServerDisconnected  = "Server disconnected"
)

// Frame is one WebSocket message. The relay never inspects data
// frames; it forwards the bytes and the text/binary flag as received.
type Frame = wsconn.Frame

// Socket is an accepted connection as the router sees it.
//
// Send and Close must not block: the router calls them while holding
// a session lock. Implementations queue the work for a writer.
type Socket interface {
	Send(frame Frame) error
	Close(code int, reason string)

	// Attachment returns the encoded [Identity] stored with the socket
	// at accept time.
	Attachment() []byte
}
