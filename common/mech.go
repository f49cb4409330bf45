// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package common

type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	}

	return "unknown"
}

// Status is the outcome of a successful authentication step
type Status uint8

const (
	StatusNeedsMore Status = iota // another round trip is required
	StatusOK                      // the exchange completed successfully
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "needs more"
}

type MechProps struct {
	MaxSSF             uint
	SecurityProperties SecurityFlag
	Features           Feature
}

type ContextParams struct {
	SSF                uint
	MaxPeerMessageSize uint32
	MaxFrameSize       uint32 // largest incoming frame, excluding the length prefix; 0 without a layer
}

type ChannelBinding struct {
	Data     []byte
	Critical bool
}

type MechConfig struct {
	MinSSF         uint
	MaxSSF         uint
	MaxBufSize     uint
	ExternalSSF    uint
	SecProps       SecurityFlag
	HTTPMode       bool
	ExtraProps     map[string]string
	ChannelBinding *ChannelBinding
}

// Session is the view a mechanism has of the session that owns it.
// Property lookups may invoke the application callback; PropertyFast
// never does.
type Session interface {
	Role() Role
	Config() MechConfig

	Property(p Property) (string, error)
	PropertyFast(p Property) (string, bool)
	SetProperty(p Property, value string)
	ClearProperty(p Property)
	Callback(p Property) error

	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

type Mech interface {
	Name() string
	IsEstablished() bool
	ContextParams() ContextParams
	Step(inToken []byte) (outToken []byte, done bool, err error)
}

// SecurityLayer is implemented by mechanisms that can protect application
// data once authentication has completed.  Mechanisms without it get an
// identity mapping from the session.
type SecurityLayer interface {
	Encode(input []byte) (output []byte, err error)
	Decode(input []byte) (output []byte, err error)
}

// Finisher is implemented by mechanisms holding state that must be
// released when the session ends.
type Finisher interface {
	Finish()
}

type MechFactory func(Session) (Mech, error)
