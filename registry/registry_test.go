// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package registry

import (
	"testing"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyMech struct {
	rand int
}

func (m dummyMech) Name() string {
	return "MOCK"
}
func (m dummyMech) IsEstablished() bool {
	return false
}
func (m dummyMech) Step(inToken []byte) (outToken []byte, done bool, err error) {
	return nil, false, nil
}
func (m dummyMech) ContextParams() common.ContextParams {
	return common.ContextParams{}
}

func factory(n int) common.MechFactory {
	return func(common.Session) (common.Mech, error) {
		return dummyMech{rand: n}, nil
	}
}

func TestRegister(t *testing.T) {
	props := common.MechProps{}

	assert.NotPanics(t, func() { Register("TEST", props, factory(123), nil) })

	// panics because its already registered
	assert.Panics(t, func() { Register("TEST", props, factory(123), nil) })

	// panics because the mech name isn't valid (lower case not allowed)
	assert.Panics(t, func() { Register("bad-mech-name", props, factory(123), nil) })

	// panics because neither role is implemented
	assert.Panics(t, func() { Register("NO-ROLES", props, nil, nil) })
}

func TestIsRegistered(t *testing.T) {
	assert.NotPanics(t, func() { Register("TEST1", common.MechProps{}, factory(456), nil) })
	assert.True(t, IsRegistered("TEST1"))
	assert.False(t, IsRegistered("NEVER_REGISTERED"))

	assert.True(t, Supports("TEST1", common.RoleClient))
	assert.False(t, Supports("TEST1", common.RoleServer))
	assert.False(t, Supports("NEVER_REGISTERED", common.RoleClient))
}

func TestMechs(t *testing.T) {
	// start with empty mech list
	mechs = make(map[string]mech)

	assert.NotPanics(t, func() { Register("TEST3", common.MechProps{}, factory(789), nil) })
	assert.NotPanics(t, func() { Register("TEST2", common.MechProps{}, nil, factory(789)) })
	assert.NotPanics(t, func() { Register("TEST4", common.MechProps{}, factory(1), factory(2)) })

	assert.Equal(t, []string{"TEST2", "TEST3", "TEST4"}, Mechs())
	assert.Equal(t, []string{"TEST3", "TEST4"}, MechsFor(common.RoleClient))
	assert.Equal(t, []string{"TEST2", "TEST4"}, MechsFor(common.RoleServer))
}

func TestNewMech(t *testing.T) {
	props := common.MechProps{MaxSSF: 1}

	assert.NotPanics(t, func() { Register("TEST5", props, factory(98765), nil) })
	assert.NotPanics(t, func() { Register("TEST6", props, factory(54321), factory(11111)) })

	mech1, err := NewMech("TEST5", common.RoleClient, nil)
	require.NoError(t, err)
	mech2, err := NewMech("TEST6", common.RoleServer, nil)
	require.NoError(t, err)

	_, err = NewMech("no-such-mech", common.RoleClient, nil)
	assert.ErrorIs(t, err, common.ErrUnknownMechanism)

	// TEST5 has no server side
	_, err = NewMech("TEST5", common.RoleServer, nil)
	assert.ErrorIs(t, err, common.ErrUnknownMechanism)

	testMech1, ok1 := mech1.(dummyMech)
	testMech2, ok2 := mech2.(dummyMech)
	assert.True(t, ok1)
	assert.True(t, ok2)

	assert.Equal(t, 98765, testMech1.rand)
	assert.Equal(t, 11111, testMech2.rand)

	assert.Equal(t, props, Properties("TEST5"))
	assert.Equal(t, common.MechProps{}, Properties("no-such-mech"))
}
