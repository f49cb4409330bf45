// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package plain

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/golang-auth/go-gsasl/registry"
)

const mechName = "PLAIN"

func init() {
	registry.Register(mechName, common.MechProps{
		MaxSSF:             0,
		SecurityProperties: common.SecNoAnonymous | common.SecPassCredentials,
		Features:           common.FeatWantClientFirst,
	}, NewClient, NewServer)
}

type state uint8

const (
	stateInitial state = iota
	stateDone
	stateFailed
)

type Client struct {
	sess  common.Session
	state state
}

func NewClient(s common.Session) (common.Mech, error) {
	return &Client{sess: s}, nil
}

func (m *Client) Name() string {
	return mechName
}

// Step sends [authzid] NUL authcid NUL passwd (RFC 4616 § 2)
func (m *Client) Step(in []byte) ([]byte, bool, error) {
	if m.state != stateInitial {
		return nil, false, common.ErrCalledTooManyTimes
	}
	m.state = stateFailed

	authzID, err := m.sess.Property(common.PropAuthzID)
	if err != nil && !errors.Is(err, common.ErrNoProperty) {
		return nil, false, err
	}
	authID, err := m.sess.Property(common.PropAuthID)
	if err != nil {
		return nil, false, err
	}
	password, err := m.sess.Property(common.PropPassword)
	if err != nil {
		return nil, false, err
	}

	var out bytes.Buffer
	out.WriteString(authzID)
	out.WriteByte(0)
	out.WriteString(authID)
	out.WriteByte(0)
	out.WriteString(norm.NFKC.String(password))

	m.sess.Debugf("plain: sending credentials for %q", authID)
	m.state = stateDone

	return out.Bytes(), true, nil
}

func (m *Client) IsEstablished() bool {
	return m.state == stateDone
}

func (m *Client) ContextParams() common.ContextParams {
	return common.ContextParams{}
}

type Server struct {
	sess  common.Session
	state state
}

func NewServer(s common.Session) (common.Mech, error) {
	return &Server{sess: s}, nil
}

func (m *Server) Name() string {
	return mechName
}

func (m *Server) Step(in []byte) ([]byte, bool, error) {
	if m.state != stateInitial {
		return nil, false, common.ErrCalledTooManyTimes
	}

	// ask the client for its initial response
	if len(in) == 0 {
		return nil, false, nil
	}

	if err := m.verify(in); err != nil {
		m.state = stateFailed
		return nil, false, err
	}

	m.state = stateDone
	return nil, true, nil
}

func (m *Server) verify(in []byte) error {
	fields := bytes.Split(in, []byte{0})
	if len(fields) != 3 {
		return &common.ParseError{Reason: fmt.Sprintf("expected 3 fields, got %d", len(fields))}
	}
	authzID, authID, password := string(fields[0]), string(fields[1]), string(fields[2])
	if authID == "" {
		return &common.ParseError{Directive: "authcid", Reason: "empty"}
	}

	m.sess.SetProperty(common.PropAuthID, authID)
	if authzID != "" {
		m.sess.SetProperty(common.PropAuthzID, authzID)
	}
	// an application may have stored the password before the exchange
	stored, preset := m.sess.PropertyFast(common.PropPassword)
	m.sess.SetProperty(common.PropPassword, password)

	err := m.sess.Callback(common.ValidateSimple)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrNoCallback) {
		if common.HasKind(err) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrAuthentication, err)
	}

	// no validator: compare with the stored password
	if preset {
		m.sess.SetProperty(common.PropPassword, stored)
	} else {
		m.sess.ClearProperty(common.PropPassword)
		if stored, err = m.sess.Property(common.PropPassword); err != nil {
			return err
		}
	}

	if subtle.ConstantTimeCompare([]byte(norm.NFKC.String(stored)), []byte(password)) != 1 {
		return fmt.Errorf("%w: bad password for %q", common.ErrAuthentication, authID)
	}

	return nil
}

func (m *Server) IsEstablished() bool {
	return m.state == stateDone
}

func (m *Server) ContextParams() common.ContextParams {
	return common.ContextParams{}
}
