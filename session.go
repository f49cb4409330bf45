// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package sasl

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/golang-auth/go-gsasl/pkg/loggable"
)

// Callback is invoked when a mechanism needs a property that is not set,
// or wants the application to validate credentials.  To supply a value
// the callback calls s.SetProperty before returning nil.
type Callback func(s *Session, prop common.Property) error

// Session binds one mechanism, in one role, to a property store.  A
// session must not be used from more than one goroutine at a time.
type Session struct {
	loggable.Loggable

	ctx      *Context
	name     string
	role     common.Role
	mech     common.Mech
	callback Callback
	props    map[common.Property]string
	appData  interface{}
	finished bool
}

func newSession(c *Context, name string, role common.Role) *Session {
	s := &Session{
		ctx:   c,
		name:  name,
		role:  role,
		props: make(map[common.Property]string),
	}

	if c.logrus != nil {
		l := c.logrus.WithFields(logrus.Fields{"mech": name, "role": role.String()})
		_ = loggable.WithLogrus(l)(&s.Loggable)
	} else {
		s.Loggable = c.Loggable
	}

	if c.service != "" {
		s.props[common.PropService] = c.service
	}
	if c.serverFQDN != "" {
		s.props[common.PropHostname] = c.serverFQDN
	}

	return s
}

// Mechanism returns the name of the mechanism the session runs
func (s *Session) Mechanism() string {
	return s.name
}

func (s *Session) Role() common.Role {
	return s.role
}

func (s *Session) Config() common.MechConfig {
	return s.ctx.config()
}

func (s *Session) IsEstablished() bool {
	if s.finished {
		return false
	}

	return s.mech.IsEstablished()
}

func (s *Session) ContextParams() common.ContextParams {
	if s.finished {
		return common.ContextParams{}
	}

	return s.mech.ContextParams()
}

// Step performs one round of the authentication exchange.  The output,
// which may be empty, should be sent to the peer whenever err is nil.
func (s *Session) Step(in []byte) (out []byte, status common.Status, err error) {
	if s.finished {
		return nil, common.StatusNeedsMore, common.ErrFinished
	}

	out, done, err := s.mech.Step(in)
	if err != nil {
		s.Debugf("step failed: %s", err)
		return nil, common.StatusNeedsMore, s.wrapErr(err)
	}

	if done {
		status = common.StatusOK
	}

	return out, status, nil
}

// Step64 is Step for protocols that carry tokens as base64 text
func (s *Session) Step64(in string) (string, common.Status, error) {
	raw, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return "", common.StatusNeedsMore, fmt.Errorf("%s: %w", s.name, &common.ParseError{Reason: "bad base64 input: " + err.Error()})
	}

	out, status, err := s.Step(raw)
	if err != nil {
		return "", status, err
	}

	return base64.StdEncoding.EncodeToString(out), status, nil
}

// Encode protects an outgoing application message.  Mechanisms without
// a security layer return a copy of the input.
func (s *Session) Encode(p []byte) ([]byte, error) {
	if s.finished {
		return nil, common.ErrFinished
	}

	if sl, ok := s.mech.(common.SecurityLayer); ok {
		out, err := sl.Encode(p)
		if err != nil {
			return nil, s.wrapErr(err)
		}
		return out, nil
	}

	return clone(p), nil
}

// Decode verifies and unwraps one incoming message.  With an integrity
// layer a partial frame yields ErrNeedsMore.
func (s *Session) Decode(p []byte) ([]byte, error) {
	if s.finished {
		return nil, common.ErrFinished
	}

	if sl, ok := s.mech.(common.SecurityLayer); ok {
		out, err := sl.Decode(p)
		if err != nil {
			if errors.Is(err, common.ErrNeedsMore) {
				return nil, err
			}
			return nil, s.wrapErr(err)
		}
		return out, nil
	}

	return clone(p), nil
}

// Finish releases the mechanism state and wipes the property store.  The
// session cannot be used afterwards.
func (s *Session) Finish() {
	if s.finished {
		return
	}

	if f, ok := s.mech.(common.Finisher); ok {
		f.Finish()
	}

	s.wipe()
	s.finished = true
	s.Debugf("session finished")
}

func (s *Session) wipe() {
	for k := range s.props {
		delete(s.props, k)
	}
	s.appData = nil
}

// SetCallback installs a callback for this session only, overriding the
// context callback.  A nil callback restores the context callback.
func (s *Session) SetCallback(cb Callback) {
	s.callback = cb
}

// Callback hands prop to the application callback
func (s *Session) Callback(prop common.Property) error {
	cb := s.callback
	if cb == nil {
		cb = s.ctx.callback
	}

	if cb == nil {
		return fmt.Errorf("%w: %s", common.ErrNoCallback, prop)
	}

	return cb(s, prop)
}

func (s *Session) SetProperty(prop common.Property, value string) {
	s.props[prop] = value
}

func (s *Session) ClearProperty(prop common.Property) {
	delete(s.props, prop)
}

// PropertyFast returns a property only if it is already set
func (s *Session) PropertyFast(prop common.Property) (string, bool) {
	v, ok := s.props[prop]
	return v, ok
}

// Property returns a property, asking the callback once if it is not set
func (s *Session) Property(prop common.Property) (string, error) {
	if v, ok := s.props[prop]; ok {
		return v, nil
	}

	if err := s.Callback(prop); err != nil {
		if errors.Is(err, common.ErrNoCallback) {
			return "", fmt.Errorf("%w: %w", common.ErrNoProperty, err)
		}
		return "", err
	}

	if v, ok := s.props[prop]; ok {
		return v, nil
	}

	return "", fmt.Errorf("%w: %s", common.ErrNoProperty, prop)
}

func (s *Session) SetAppData(v interface{}) {
	s.appData = v
}

func (s *Session) AppData() interface{} {
	return s.appData
}

func (s *Session) wrapErr(err error) error {
	if common.HasKind(err) {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	return fmt.Errorf("%s: %w: %w", s.name, common.ErrMechanism, err)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
