// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"fmt"
	"testing"

	"github.com/golang-auth/go-gsasl/common"
)

// testSession is a minimal common.Session backed by a map
type testSession struct {
	t     *testing.T
	role  common.Role
	cfg   common.MechConfig
	props map[common.Property]string
	cb    func(s *testSession, p common.Property) error
	asked []common.Property
}

func newTestSession(t *testing.T, role common.Role, props map[common.Property]string) *testSession {
	if props == nil {
		props = make(map[common.Property]string)
	}
	return &testSession{
		t:     t,
		role:  role,
		cfg:   common.MechConfig{MaxSSF: ^uint(0), MaxBufSize: DefaultMaxBuf},
		props: props,
	}
}

func (s *testSession) Role() common.Role         { return s.role }
func (s *testSession) Config() common.MechConfig { return s.cfg }

func (s *testSession) SetProperty(p common.Property, v string) {
	s.props[p] = v
}

func (s *testSession) ClearProperty(p common.Property) {
	delete(s.props, p)
}

func (s *testSession) PropertyFast(p common.Property) (string, bool) {
	v, ok := s.props[p]
	return v, ok
}

func (s *testSession) Callback(p common.Property) error {
	s.asked = append(s.asked, p)
	if s.cb == nil {
		return common.ErrNoCallback
	}
	return s.cb(s, p)
}

func (s *testSession) Property(p common.Property) (string, error) {
	if v, ok := s.props[p]; ok {
		return v, nil
	}
	if err := s.Callback(p); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrNoProperty, err)
	}
	if v, ok := s.props[p]; ok {
		return v, nil
	}
	return "", common.ErrNoProperty
}

func (s *testSession) Debugf(msg string, args ...interface{}) { s.t.Logf("D: "+msg, args...) }
func (s *testSession) Infof(msg string, args ...interface{})  { s.t.Logf("I: "+msg, args...) }
func (s *testSession) Warnf(msg string, args ...interface{})  { s.t.Logf("W: "+msg, args...) }
func (s *testSession) Errorf(msg string, args ...interface{}) { s.t.Logf("E: "+msg, args...) }
