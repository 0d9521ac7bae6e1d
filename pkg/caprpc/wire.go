// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caprpc

// CapID names a capability exported by one side of a connection. The
// bootstrap capability is always BootstrapID.
type CapID uint32

// BootstrapID is the capability every connection starts with.
const BootstrapID CapID = 0

// QuestionID pairs a Call with its Return.
type QuestionID uint32

// Side is the role a peer plays in the two-party connection.
type Side uint8

const (
	SideClient Side = iota + 1
	SideServer
)

func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideServer:
		return "server"
	}
	return "unknown"
}

// MessageType tags the body of a Message.
type MessageType uint8

const (
	MsgHello MessageType = iota + 1
	MsgCall
	MsgReturn
	MsgRelease
	MsgAbort
)

func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "hello"
	case MsgCall:
		return "call"
	case MsgReturn:
		return "return"
	case MsgRelease:
		return "release"
	case MsgAbort:
		return "abort"
	}
	return "unknown"
}

// Message is one frame on the wire. Exactly one body field is set, matching
// Type.
type Message struct {
	Type    MessageType `cbor:"1,keyasint"`
	Hello   *Hello      `cbor:"2,keyasint,omitempty"`
	Call    *CallFrame  `cbor:"3,keyasint,omitempty"`
	Return  *Return     `cbor:"4,keyasint,omitempty"`
	Release *Release    `cbor:"5,keyasint,omitempty"`
	Abort   *Exception  `cbor:"6,keyasint,omitempty"`
}

// Hello is the first frame each peer sends.
type Hello struct {
	Version string   `cbor:"1,keyasint"`
	Side    Side     `cbor:"2,keyasint"`
	Codecs  []string `cbor:"3,keyasint,omitempty"`
}

// CallFrame invokes Method of Interface on the capability Target exported
// by the receiver. Params is carried as a byte string holding either the
// CBOR-encoded parameters or, when Packed, their zstd compression.
type CallFrame struct {
	Question  QuestionID           `cbor:"1,keyasint"`
	Target    CapID                `cbor:"2,keyasint"`
	Interface string               `cbor:"3,keyasint"`
	Method    string               `cbor:"4,keyasint"`
	Params    []byte               `cbor:"5,keyasint,omitempty"`
	Packed    bool                 `cbor:"6,keyasint,omitempty"`
}

// Return answers the Call with the same question id. At most one of
// Results, Cap and Exception is meaningful. Results is encoded like
// CallFrame.Params.
type Return struct {
	Answer    QuestionID           `cbor:"1,keyasint"`
	Results   []byte               `cbor:"2,keyasint,omitempty"`
	Cap       *CapID               `cbor:"3,keyasint,omitempty"`
	Exception *Exception           `cbor:"4,keyasint,omitempty"`
	Packed    bool                 `cbor:"5,keyasint,omitempty"`
}

// Release drops the sender's reference to a capability the receiver
// exported.
type Release struct {
	Cap CapID `cbor:"1,keyasint"`
}

// CodecZstd is advertised in Hello by peers that can unpack zstd payloads.
const CodecZstd = "zstd"
