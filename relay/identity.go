// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// identityVersion is the attachment schema version written by
// [EncodeIdentity].
const identityVersion = 1

// Role is the side of the session a socket belongs to.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Kind is a socket's routing role, derived from its [Identity].
type Kind int

const (
	KindControl Kind = iota
	KindData
	KindClient

	// KindLegacyServer and KindLegacyClient are protocol version 1
	// sockets: one server paired with its clients, no per-client
	// isolation.
	KindLegacyServer
	KindLegacyClient
)

// Identity is the routing metadata attached to a socket at accept time.
// It is the only per-connection state the router relies on.
type Identity struct {
	Version   int       `cbor:"1,keyasint"`
	ServerID  string    `cbor:"2,keyasint"`
	Role      Role      `cbor:"3,keyasint"`
	ClientID  string    `cbor:"4,keyasint,omitempty"`
	Protocol  int       `cbor:"5,keyasint"`
	CreatedAt time.Time `cbor:"6,keyasint"`
}

// Kind classifies the identity for routing.
func (identity Identity) Kind() Kind {
	switch {
	case identity.Protocol == 1 && identity.Role == RoleServer:
		return KindLegacyServer
	case identity.Protocol == 1:
		return KindLegacyClient
	case identity.Role == RoleClient:
		return KindClient
	case identity.ClientID == "":
		return KindControl
	default:
		return KindData
	}
}

// Tag is the socket tag used in logs: "server-control",
// "server-data:<clientId>", or "client:<clientId>". Version 1 sockets
// are tagged "server" and "client".
func (identity Identity) Tag() string {
	switch identity.Kind() {
	case KindControl:
		return "server-control"
	case KindData:
		return "server-data:" + identity.ClientID
	case KindClient:
		return "client:" + identity.ClientID
	case KindLegacyServer:
		return "server"
	default:
		return "client"
	}
}

var (
	identityEncMode cbor.EncMode
	identityDecMode cbor.DecMode
)

func init() {
	options := cbor.CoreDetEncOptions()
	options.Time = cbor.TimeRFC3339Nano
	var err error
	identityEncMode, err = options.EncMode()
	if err != nil {
		panic("relay: CBOR encoder initialization failed: " + err.Error())
	}
	identityDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("relay: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeIdentity serializes identity for attachment to a socket. The
// version field is stamped by this function.
func EncodeIdentity(identity Identity) ([]byte, error) {
	identity.Version = identityVersion
	data, err := identityEncMode.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("encoding identity: %w", err)
	}
	return data, nil
}

// DecodeIdentity reads an attachment written by [EncodeIdentity].
func DecodeIdentity(data []byte) (Identity, error) {
	if len(data) == 0 {
		return Identity{}, errors.New("decoding identity: socket has no attachment")
	}
	var identity Identity
	if err := identityDecMode.Unmarshal(data, &identity); err != nil {
		return Identity{}, fmt.Errorf("decoding identity: %w", err)
	}
	if identity.Version != identityVersion {
		return Identity{}, fmt.Errorf("decoding identity: unsupported version %d", identity.Version)
	}
	return identity, nil
}

// Connection parameter errors. [ParseParams] wraps them in a
// [*ParamError].
var (
	ErrMissingServerID = errors.New("missing serverId")
	ErrMissingRole     = errors.New("missing role")
	ErrInvalidRole     = errors.New("role must be server or client")
	ErrInvalidVersion  = errors.New("v must be 1 or 2")
	ErrMissingClientID = errors.New("missing clientId for client role")
)

// ParamError rejects a connection attempt before the upgrade.
type ParamError struct {
	// Status is the HTTP status to answer with.
	Status int
	Err    error
}

func (e *ParamError) Error() string { return "invalid relay parameters: " + e.Err.Error() }
func (e *ParamError) Unwrap() error { return e.Err }

// ParseParams validates the query of a connection request and returns
// the identity it describes, without Version or CreatedAt.
//
// v defaults to 1 when absent, since clients that predate per-client
// isolation never sent it. A version 2 client must name its client
// ID; a version 1 client may omit it.
func ParseParams(query url.Values) (Identity, error) {
	reject := func(err error) (Identity, error) {
		return Identity{}, &ParamError{Status: http.StatusBadRequest, Err: err}
	}

	identity := Identity{
		ServerID: query.Get("serverId"),
		Role:     Role(query.Get("role")),
		ClientID: query.Get("clientId"),
	}
	if identity.ServerID == "" {
		return reject(ErrMissingServerID)
	}
	switch identity.Role {
	case "":
		return reject(ErrMissingRole)
	case RoleServer, RoleClient:
	default:
		return reject(fmt.Errorf("%w, got %q", ErrInvalidRole, identity.Role))
	}

	switch version := query.Get("v"); version {
	case "", "1":
		identity.Protocol = 1
	case "2":
		identity.Protocol = 2
	default:
		return reject(fmt.Errorf("%w, got %q", ErrInvalidVersion, version))
	}

	if identity.Protocol == 2 && identity.Role == RoleClient && identity.ClientID == "" {
		return reject(ErrMissingClientID)
	}
	if identity.Protocol == 1 && identity.Role == RoleServer {
		identity.ClientID = ""
	}
	return identity, nil
}
