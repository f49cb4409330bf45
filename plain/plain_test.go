// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package plain_test

import (
	"errors"
	"testing"

	sasl "github.com/golang-auth/go-gsasl"
	"github.com/golang-auth/go-gsasl/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientCallback(s *sasl.Session, p common.Property) error {
	switch p {
	case common.PropAuthID:
		s.SetProperty(p, "tim")
	case common.PropPassword:
		s.SetProperty(p, "tanstaaftanstaaf")
	default:
		return common.ErrNoCallback
	}
	return nil
}

func newContext(t *testing.T, cb sasl.Callback) *sasl.Context {
	ctx, err := sasl.NewContext(
		sasl.WithCallback(cb),
		sasl.WithMechList([]string{"PLAIN"}),
	)
	require.NoError(t, err)
	return ctx
}

func TestPlainWire(t *testing.T) {
	c, err := newContext(t, clientCallback).ClientStart("PLAIN")
	require.NoError(t, err)

	out, status, err := c.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, common.StatusOK, status)
	assert.Equal(t, []byte("\x00tim\x00tanstaaftanstaaf"), out)

	_, _, err = c.Step(nil)
	assert.ErrorIs(t, err, common.ErrCalledTooManyTimes)

	c, err = newContext(t, clientCallback).ClientStart("PLAIN")
	require.NoError(t, err)
	c.SetProperty(common.PropAuthzID, "Ursel")
	c.SetProperty(common.PropAuthID, "Kurt")
	c.SetProperty(common.PropPassword, "xipj3plmq")

	out, _, err = c.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("Ursel\x00Kurt\x00xipj3plmq"), out)
}

func TestPlainStoredPassword(t *testing.T) {
	server := func(s *sasl.Session, p common.Property) error {
		if user, _ := s.PropertyFast(common.PropAuthID); p == common.PropPassword && user == "tim" {
			s.SetProperty(p, "tanstaaftanstaaf")
			return nil
		}
		return common.ErrNoCallback
	}

	var tests = []struct {
		name  string
		token string
		err   error
	}{
		{"good", "\x00tim\x00tanstaaftanstaaf", nil},
		{"bad password", "\x00tim\x00wrong", common.ErrAuthentication},
		{"unknown user", "\x00bob\x00tanstaaftanstaaf", common.ErrNoProperty},
		{"missing field", "tim\x00tanstaaftanstaaf", common.ErrMechanismParse},
		{"extra field", "\x00tim\x00pw\x00x", common.ErrMechanismParse},
		{"empty authcid", "\x00\x00pw", common.ErrMechanismParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newContext(t, server).ServerStart("PLAIN")
			require.NoError(t, err)

			// an empty first step asks for the initial response
			out, status, err := s.Step(nil)
			require.NoError(t, err)
			assert.Equal(t, common.StatusNeedsMore, status)
			assert.Empty(t, out)

			_, status, err = s.Step([]byte(tt.token))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.False(t, s.IsEstablished())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, common.StatusOK, status)
			assert.True(t, s.IsEstablished())
		})
	}
}

func TestPlainPresetPassword(t *testing.T) {
	none := func(*sasl.Session, common.Property) error {
		return common.ErrNoCallback
	}

	var tests = []struct {
		name  string
		token string
		err   error
	}{
		{"good", "\x00tim\x00tanstaaftanstaaf", nil},
		{"bad password", "\x00tim\x00wrong", common.ErrAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newContext(t, none).ServerStart("PLAIN")
			require.NoError(t, err)
			s.SetProperty(common.PropPassword, "tanstaaftanstaaf")

			_, _, err = s.Step([]byte(tt.token))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.False(t, s.IsEstablished())
			} else {
				require.NoError(t, err)
				assert.True(t, s.IsEstablished())
			}

			pw, ok := s.PropertyFast(common.PropPassword)
			assert.True(t, ok)
			assert.Equal(t, "tanstaaftanstaaf", pw)
		})
	}
}

func TestPlainValidateCallback(t *testing.T) {
	var validated []string
	server := func(s *sasl.Session, p common.Property) error {
		if p != common.ValidateSimple {
			return common.ErrNoCallback
		}
		authz, _ := s.Property(common.PropAuthzID)
		authn, _ := s.Property(common.PropAuthID)
		pw, _ := s.Property(common.PropPassword)
		validated = append(validated, authz+"/"+authn)
		if pw != "secret" {
			return errors.New("access denied")
		}
		return nil
	}

	s, err := newContext(t, server).ServerStart("PLAIN")
	require.NoError(t, err)
	_, status, err := s.Step([]byte("admin\x00joe\x00secret"))
	require.NoError(t, err)
	assert.Equal(t, common.StatusOK, status)
	assert.Equal(t, []string{"admin/joe"}, validated)

	s, err = newContext(t, server).ServerStart("PLAIN")
	require.NoError(t, err)
	_, _, err = s.Step([]byte("\x00joe\x00guess"))
	assert.ErrorIs(t, err, common.ErrAuthentication)
	assert.ErrorContains(t, err, "access denied")
}

func TestPlainRoundTrip(t *testing.T) {
	c, err := newContext(t, clientCallback).ClientStart("PLAIN")
	require.NoError(t, err)
	s, err := newContext(t, func(s *sasl.Session, p common.Property) error {
		if p == common.PropPassword {
			s.SetProperty(p, "tanstaaftanstaaf")
			return nil
		}
		return common.ErrNoCallback
	}).ServerStart("PLAIN")
	require.NoError(t, err)

	token, _, err := c.Step(nil)
	require.NoError(t, err)
	_, status, err := s.Step(token)
	require.NoError(t, err)
	assert.Equal(t, common.StatusOK, status)

	authID, ok := s.PropertyFast(common.PropAuthID)
	assert.True(t, ok)
	assert.Equal(t, "tim", authID)

	// no security layer: encode and decode are the identity
	for _, msg := range [][]byte{{}, []byte("a"), []byte("A001 LOGOUT\r\n")} {
		enc, err := c.Encode(msg)
		require.NoError(t, err)
		assert.Equal(t, msg, enc)
		dec, err := s.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, msg, dec)
	}
}
