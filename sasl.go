// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package sasl

import (
	"errors"
	"log"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/golang-auth/go-gsasl/pkg/loggable"
	"github.com/golang-auth/go-gsasl/registry"

	_ "github.com/golang-auth/go-gsasl/digestmd5"
	_ "github.com/golang-auth/go-gsasl/gssapi"
	_ "github.com/golang-auth/go-gsasl/plain"
)

type ContextOption func(*Context) error

// Context is the library handle.  It carries the configuration and
// default callback shared by the sessions it starts, and must not be
// modified once sessions are running.
type Context struct {
	loggable.Loggable

	callback        Callback
	logrus          logrus.FieldLogger
	service         string
	mechList        []string
	serverFQDN      string
	minSSF          uint
	maxSSF          uint
	maxBufSize      uint // max the local side can receive
	secProps        common.SecurityFlag
	externalSSF     uint
	needHTTP        bool
	channelBindings *common.ChannelBinding
	extraProps      map[string]string
}

type channelBindingDisposition int

const (
	channelBindingDispNone channelBindingDisposition = iota
	channelBindingDispWant
	channelBindingDispMust
)

func NewContext(opts ...ContextOption) (ctx *Context, err error) {
	ctx = &Context{
		secProps:   common.SecNoAnonymous | common.SecNoPlainText,
		maxBufSize: 65536,
		maxSSF:     ^uint(0),
		extraProps: make(map[string]string),
	}

	for _, o := range opts {
		if err = o(ctx); err != nil {
			return nil, err
		}
	}

	if len(ctx.mechList) > 0 {
		// trim the mech list to only those that are registered
		var newMechList []string

		for _, name := range ctx.mechList {
			if registry.IsRegistered(name) {
				newMechList = append(newMechList, name)
			}
		}

		ctx.mechList = newMechList
		ctx.Debugf("using specified registered mechs: [%s]", strings.Join(ctx.mechList, ", "))
	} else {
		// default to all registered mechs
		ctx.mechList = registry.Mechs()
		ctx.Debugf("using all registered mechs: [%s]", strings.Join(ctx.mechList, ", "))
	}

	if len(ctx.mechList) == 0 {
		return nil, common.ErrNoMech
	}

	return ctx, nil
}

var validHostnameRegex = regexp.MustCompile(`^(([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]*[a-zA-Z0-9])\.)*([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9\-]*[A-Za-z0-9])$`)

// WithCallback sets the callback used by sessions that have no
// callback of their own
func WithCallback(cb Callback) ContextOption {
	return func(c *Context) error {
		c.callback = cb
		return nil
	}
}

// WithService sets the registered service name (eg. "imap") used to
// seed the SERVICE property of new sessions
func WithService(service string) ContextOption {
	return func(c *Context) error {
		c.service = service
		return nil
	}
}

func WithServerFQDN(fqdn string) ContextOption {
	return func(c *Context) error {
		if fqdn != "" {
			if !validHostnameRegex.Match([]byte(fqdn)) {
				return errors.New("bad hostname")
			}

			c.serverFQDN = fqdn
		}

		return nil
	}
}

func WithMechList(mechs []string) ContextOption {
	return func(c *Context) error {
		if len(mechs) > 0 {
			c.mechList = mechs
		}

		return nil
	}
}

func WithMinSSF(ssf uint) ContextOption {
	return func(c *Context) error {
		c.minSSF = ssf
		return nil
	}
}

func WithMaxSSF(ssf uint) ContextOption {
	return func(c *Context) error {
		c.maxSSF = ssf
		return nil
	}
}

// WithExternalSSF records the strength of a layer below SASL, such as TLS
func WithExternalSSF(ssf uint) ContextOption {
	return func(c *Context) error {
		c.externalSSF = ssf
		return nil
	}
}

func WithNeedHTTP() ContextOption {
	return func(c *Context) error {
		c.needHTTP = true
		return nil
	}
}

func WithChannelBindings(cb common.ChannelBinding) ContextOption {
	return func(c *Context) error {
		c.channelBindings = &cb
		return nil
	}
}

func WithMaxBufSize(size uint) ContextOption {
	return func(c *Context) error {
		c.maxBufSize = size
		return nil
	}
}

func WithSecurityProps(props common.SecurityFlag) ContextOption {
	return func(c *Context) error {
		c.secProps = props & common.SecAll
		return nil
	}
}

func WithExtraProps(key, value string) ContextOption {
	return func(c *Context) error {
		c.extraProps[key] = value
		return nil
	}
}

func WithDebugLogger(l *log.Logger) ContextOption {
	return func(c *Context) error {
		return loggable.WithDebugLogger(l)(&c.Loggable)
	}
}
func WithInfoLogger(l *log.Logger) ContextOption {
	return func(c *Context) error {
		return loggable.WithInfoLogger(l)(&c.Loggable)
	}
}
func WithWarnLogger(l *log.Logger) ContextOption {
	return func(c *Context) error {
		return loggable.WithWarnLogger(l)(&c.Loggable)
	}
}
func WithErrorLogger(l *log.Logger) ContextOption {
	return func(c *Context) error {
		return loggable.WithErrorLogger(l)(&c.Loggable)
	}
}

// WithLogger sends all log levels to a logrus logger.  Sessions add the
// mechanism name and role as fields.
func WithLogger(l logrus.FieldLogger) ContextOption {
	return func(c *Context) error {
		c.logrus = l
		return loggable.WithLogrus(l)(&c.Loggable)
	}
}

func (c *Context) config() common.MechConfig {
	extra := make(map[string]string, len(c.extraProps))
	for k, v := range c.extraProps {
		extra[k] = v
	}

	return common.MechConfig{
		MinSSF:         c.minSSF,
		MaxSSF:         c.maxSSF,
		MaxBufSize:     c.maxBufSize,
		ExternalSSF:    c.externalSSF,
		SecProps:       c.secProps,
		HTTPMode:       c.needHTTP,
		ExtraProps:     extra,
		ChannelBinding: c.channelBindings,
	}
}

func (c *Context) mechsFor(role common.Role) (l []string) {
	for _, name := range c.mechList {
		if registry.Supports(name, role) {
			l = append(l, name)
		}
	}

	return
}

// ClientMechanisms returns the mechanisms this context can use as a client
func (c *Context) ClientMechanisms() []string {
	return c.mechsFor(common.RoleClient)
}

// ServerMechanisms returns the mechanisms this context can offer as a server
func (c *Context) ServerMechanisms() []string {
	return c.mechsFor(common.RoleServer)
}

func (c *Context) ClientSupport(name string) bool {
	return c.supports(name, common.RoleClient)
}

func (c *Context) ServerSupport(name string) bool {
	return c.supports(name, common.RoleServer)
}

func (c *Context) supports(name string, role common.Role) bool {
	for _, m := range c.mechList {
		if m == name {
			return registry.Supports(name, role)
		}
	}

	return false
}

// SuggestClientMechanism picks the first mechanism offered by the peer
// that this context supports as a client and that meets the configured
// security requirements
func (c *Context) SuggestClientMechanism(peerMechs []string) (string, error) {
	// how much 'extra ssf' do we need if we take the external layer into account?
	var minSSF uint
	if c.minSSF < c.externalSSF {
		minSSF = 0
	} else {
		minSSF = c.minSSF - c.externalSSF
	}

	cbDisposition, err := c.channelBindingDisposition(peerMechs)
	if err != nil {
		return "", err
	}

	for _, mech := range peerMechs {
		mech = strings.ToUpper(strings.TrimSpace(mech))
		if !c.ClientSupport(mech) {
			continue
		}

		mechProps := registry.Properties(mech)

		// discard if the mech does not meet the min SSF requirement
		if minSSF > mechProps.MaxSSF {
			c.Debugf("mech %s max SSF (%d) too low (want %d)", mech, mechProps.MaxSSF, minSSF)
			continue
		}

		wantSecProps := c.secProps
		if (c.externalSSF > c.minSSF) && (c.externalSSF > 1) {
			c.Debugf("mech %s (max SSF %d) upgraded to non-plaintext (external SSF: %d)", mech, mechProps.MaxSSF, c.externalSSF)
			wantSecProps &^= common.SecNoPlainText
		}

		// does mech meet security requirements?
		if missing := mechProps.SecurityProperties.Missing(wantSecProps); missing != 0 {
			c.Debugf("mech %s does not meet security requirements [%s]", mech, missing)
			continue
		}

		// does our configuration meet the mech's feature requirements?

		if cbDisposition == channelBindingDispMust && (mechProps.Features&common.FeatChannelBindings == 0) {
			c.Debugf("mech %s does not support channel bindings", mech)
			continue
		}

		if (mechProps.Features&common.FeatNeedServerFQDN != 0) && c.serverFQDN == "" {
			c.Debugf("mech %s requires server FQDN", mech)
			continue
		}

		// do the mech's features cover the required features?
		if c.needHTTP && (mechProps.Features&common.FeatSupportsHTTP == 0) {
			c.Debugf("mech %s does not support HTTP", mech)
			continue
		}

		// this looks like a good fit..
		c.Debugf("Chose mech %s", mech)
		return mech, nil
	}

	return "", common.ErrNoMech
}

// Start creates a session running the named mechanism in the given role
func (c *Context) Start(name string, role common.Role) (*Session, error) {
	if !c.supports(name, role) {
		return nil, common.ErrUnknownMechanism
	}

	s := newSession(c, name, role)

	mech, err := registry.NewMech(name, role, s)
	if err != nil {
		s.wipe()
		return nil, err
	}

	s.mech = mech
	s.Debugf("started %s %s session", name, role)

	return s, nil
}

func (c *Context) ClientStart(name string) (*Session, error) {
	return c.Start(name, common.RoleClient)
}

func (c *Context) ServerStart(name string) (*Session, error) {
	return c.Start(name, common.RoleServer)
}

func supportsChannelBindings(mechList []string) bool {
	supported := false

	for _, mech := range mechList {
		mechProps := registry.Properties(mech)
		if mechProps.Features&common.FeatChannelBindings > 0 {
			supported = true
			break
		}
	}

	return supported
}

// port of Cyrus SASL _sasl_cbinding_disp
func (c *Context) channelBindingDisposition(peerMechs []string) (disp channelBindingDisposition, err error) {
	serverSupported := supportsChannelBindings(peerMechs)
	disp = channelBindingDispNone
	if c.channelBindings == nil {
		c.Debugf("no channel binding requested")
		return
	}

	switch {
	// if negotiating mechs..
	case len(peerMechs) > 1:
		// error if we require CB and the server doesn't support it
		if !serverSupported && c.channelBindings.Critical {
			c.Debugf("no negotiating mechs support channel binding which is critical for us")
			err = common.ErrNoMech
			return
		} else {
			// otherwise indicate that we want CB for now
			disp = channelBindingDispWant
		}
	// if not negotiating mechs, we must have CB if critical
	case c.channelBindings.Critical:
		disp = channelBindingDispMust
	}

	return
}
