// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package registry

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/golang-auth/go-gsasl/common"
)

// See RFC 4422 § 3.1
var saslMechRegexp = regexp.MustCompile(`^[A-Z0-9-_]{1,20}$`)

type mech struct {
	client     common.MechFactory
	server     common.MechFactory
	properties common.MechProps
}

var mechs map[string]mech

func init() {
	mechs = make(map[string]mech)
}

// Register should be called by Mech implementations from init() to make
// a mechanism available.  A nil factory means the role is unsupported.
func Register(name string, props common.MechProps, client, server common.MechFactory) {
	if !saslMechRegexp.Match([]byte(name)) {
		panic("Bad mech name: " + name)
	}

	if client == nil && server == nil {
		panic("Mech " + name + " supports neither client nor server role")
	}

	_, ok := mechs[name]

	// can't register two mechs with the same name
	if ok {
		panic("Cannot have two mechs named " + name)
	}

	mechs[name] = mech{
		client:     client,
		server:     server,
		properties: props,
	}
}

// IsRegistered can be used to find out whether a named
// mechanism is registered or not
func IsRegistered(name string) bool {
	_, ok := mechs[name]

	return ok
}

// Supports reports whether the named mechanism implements role
func Supports(name string, role common.Role) bool {
	m, ok := mechs[name]
	if !ok {
		return false
	}

	return m.factory(role) != nil
}

// NewMech returns a mechanism instance by name for the given role
func NewMech(name string, role common.Role, s common.Session) (common.Mech, error) {
	m, ok := mechs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownMechanism, name)
	}

	f := m.factory(role)
	if f == nil {
		return nil, fmt.Errorf("%w: %s has no %s implementation", common.ErrUnknownMechanism, name, role)
	}

	return f(s)
}

func Properties(name string) common.MechProps {
	m, ok := mechs[name]

	if ok {
		return m.properties
	}

	return common.MechProps{}
}

// Mechs returns the sorted list of registered mechanism names
func Mechs() (l []string) {
	l = make([]string, 0, len(mechs))

	for name := range mechs {
		l = append(l, name)
	}

	sort.Strings(l)
	return
}

// MechsFor returns the sorted names of mechanisms that implement role
func MechsFor(role common.Role) (l []string) {
	for _, name := range Mechs() {
		if mechs[name].factory(role) != nil {
			l = append(l, name)
		}
	}

	return
}

func (m mech) factory(role common.Role) common.MechFactory {
	if role == common.RoleServer {
		return m.server
	}

	return m.client
}
