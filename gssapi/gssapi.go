// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package gssapi

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/golang-auth/go-gsasl/registry"

	"github.com/golang-auth/go-gssapi/v2"
	gsscommon "github.com/golang-auth/go-gssapi/v2/common"
	_ "github.com/golang-auth/go-gssapi/v2/krb5"
)

const mechName = "GSSAPI"

func init() {
	// see: https://www.iana.org/assignments/sasl-mechanisms/sasl-mechanisms.xhtml

	registry.Register(mechName, common.MechProps{
		MaxSSF:             256,
		SecurityProperties: common.SecNoPlainText | common.SecNoActive | common.SecNoAnonymous | common.SecMutualAuth | common.SecPassCredentials,
		Features:           common.FeatNeedServerFQDN | common.FeatWantClientFirst | common.FeatChannelBindings | common.FeatSecurityLayer,
	}, NewMech, nil)
}

type qop uint8

const (
	layerNone qop = 1 << iota
	layerIntegrity
	layerConfidentiality
)

func (q qop) String() string {
	var names []string
	if q&layerNone > 0 {
		names = append(names, "none")
	}
	if q&layerIntegrity > 0 {
		names = append(names, "integrity")
	}
	if q&layerConfidentiality > 0 {
		names = append(names, "confidentiality")
	}

	return strings.Join(names, ", ")
}

type state uint8

const (
	stateAuthenticating state = iota
	stateSSFCap
	stateAuthenticated
)

type GSSAPIMech struct {
	sess              common.Session
	config            common.MechConfig
	client            gssapi.Mech
	qop               qop
	ssf               uint
	state             state
	maxOutputBufferSz uint32
	maxInputBufferSz  uint32
}

func NewMech(s common.Session) (common.Mech, error) {
	s.Debugf("new GSSAPIMech")
	return &GSSAPIMech{
		sess:   s,
		config: s.Config(),
		client: gssapi.NewMech("kerberos_v5"),
		state:  stateAuthenticating,
	}, nil
}

func (m *GSSAPIMech) Name() string {
	return mechName
}

func (m *GSSAPIMech) Step(inToken []byte) (outToken []byte, done bool, err error) {
	switch m.state {
	case stateAuthenticating:
		outToken, err = m.stepAuthenticating(inToken)
	case stateSSFCap:
		outToken, err = m.stepSSFCap(inToken)
	case stateAuthenticated:
		return nil, false, common.ErrCalledTooManyTimes
	default:
		return nil, false, fmt.Errorf("gssapi: step - bad state (%d)", m.state)
	}

	if err != nil {
		return nil, false, err
	}

	return outToken, m.state == stateAuthenticated, nil
}

// principal returns the acceptor name, service/host
func (m *GSSAPIMech) principal() (string, error) {
	service, err := m.sess.Property(common.PropService)
	if err != nil {
		return "", err
	}
	host, err := m.sess.Property(common.PropHostname)
	if err != nil {
		return "", err
	}

	return service + "/" + host, nil
}

func (m *GSSAPIMech) stepAuthenticating(inToken []byte) (outToken []byte, err error) {
	m.sess.Debugf("gssapi: step (authenticating)")

	// only the first time..
	if inToken == nil {
		princName, err := m.principal()
		if err != nil {
			return nil, err
		}

		var flags gssapi.ContextFlag = gssapi.ContextFlagMutual | gssapi.ContextFlagSequence
		if m.config.MaxSSF > m.config.ExternalSSF {
			flags |= gssapi.ContextFlagInteg

			if (m.config.MaxSSF - m.config.ExternalSSF) > 1 {
				flags |= gssapi.ContextFlagConf
			}
		}

		m.sess.Debugf("gssapi: requesting flags [%s] for %s", flags.String(), princName)

		// convert SASL channel binding data to GSSAPI channel binding data
		var gsscb *gsscommon.ChannelBinding = nil
		if m.config.ChannelBinding != nil {
			gsscb = &gsscommon.ChannelBinding{
				Data: m.config.ChannelBinding.Data,
			}
		}

		if err = m.client.Initiate(princName, flags, gsscb); err != nil {
			return nil, err
		}

		switch {
		case m.client.ContextFlags()&gssapi.ContextFlagInteg == 0:
			m.qop = layerNone
		case m.client.ContextFlags()&gssapi.ContextFlagConf == 0:
			m.qop = layerNone | layerIntegrity
		default:
			m.qop = layerNone | layerIntegrity | layerConfidentiality
		}

		inToken = []byte{}
		m.sess.Debugf("gssapi: step GSSAPI context initiated")
	}

	outToken, err = m.client.Continue(inToken)
	if err != nil {
		return nil, err
	}

	if m.client.IsEstablished() {
		if m.config.HTTPMode {
			m.sess.Debugf("gssapi: step, GSSAPI context established (HTTP mode)")
			m.state = stateAuthenticated
		} else {
			m.sess.Debugf("gssapi: step, GSSAPI context established, negotiating SSF")
			m.state = stateSSFCap
			if outToken == nil {
				outToken = []byte{}
			}
		}
	}

	return outToken, nil
}

func (m *GSSAPIMech) stepSSFCap(inToken []byte) (outToken []byte, err error) {
	// inToken should be a wrapped token sent to us by the SASL server following the
	// establishment of the GSSAPI context
	m.sess.Debugf("gssapi: step (negotiating SSF)")

	// read the server's quality-of-protection offer
	data, _, err := m.client.Unwrap(inToken)
	if err != nil {
		return nil, err
	}

	if len(data) != 4 {
		return nil, &common.ParseError{Directive: "ssf-cap", Reason: fmt.Sprintf("%d bytes, wanted 4", len(data))}
	}
	var serverQOPOffer qop = qop(data[0])
	m.sess.Debugf("server QOP offer: %s,   our QOP: %s", serverQOPOffer, m.qop)

	channelSSF := m.client.SSF()
	m.sess.Debugf("GSSAPI SSF: %d", channelSSF)

	qopChoice, ssf, err := selectLayer(m.config, m.qop, serverQOPOffer, channelSSF)
	if err != nil {
		return nil, err
	}
	m.ssf = ssf

	m.sess.Debugf("selected QOP: %s, ssf: %d", qopChoice, m.ssf)

	// max message size the server will accept
	m.maxOutputBufferSz = msgSize(data)
	m.sess.Debugf("server max input buffer size: %d", m.maxOutputBufferSz)

	if m.ssf > 0 {
		// max size of an pre-wrapped message we can send to the server
		m.maxOutputBufferSz = m.client.WrapSizeLimit(m.maxOutputBufferSz, (m.ssf > 1))
		m.sess.Debugf("our max unwrapped output buffer size: %d", m.maxOutputBufferSz)
	}

	dataOut := make([]byte, 4)
	if qopChoice > 1 {
		max := minUint(m.config.MaxBufSize, 0xFFFFFF) // the max is 16777215
		m.sess.Debugf("our max input buffer size: %d", max)
		m.maxInputBufferSz = uint32(max)
		dataOut[1] = byte(max >> 16 & 0xff)
		dataOut[2] = byte(max >> 8 & 0xff)
		dataOut[3] = byte(max >> 0 & 0xff)
	}
	dataOut[0] = byte(qopChoice)

	// Create the wrapped token to send to the server
	outToken, err = m.client.Wrap(dataOut, false)
	if err != nil {
		return nil, err
	}

	m.state = stateAuthenticated
	return outToken, nil
}

// selectLayer picks the security layer from the server's offer (RFC 4752
// § 3.3) within the configured SSF bounds
func selectLayer(cfg common.MechConfig, ours, offer qop, channelSSF uint) (choice qop, ssf uint, err error) {
	if cfg.MinSSF > (channelSSF + cfg.ExternalSSF) {
		return 0, 0, common.ErrTooWeak{MechSSF: channelSSF, ExtSSF: cfg.ExternalSSF, RequiredSSF: cfg.MinSSF}
	}

	// how much 'SSF' is the mech allowed to provide and how much does it have to provide?
	var allowedSSF, needSSF uint
	if cfg.MaxSSF >= cfg.ExternalSSF {
		allowedSSF = cfg.MaxSSF - cfg.ExternalSSF
	}
	if cfg.MinSSF >= cfg.ExternalSSF {
		needSSF = cfg.MinSSF - cfg.ExternalSSF
	}

	switch {
	case ours&layerConfidentiality > 0 && offer&layerConfidentiality > 0 && allowedSSF >= channelSSF && needSSF <= channelSSF:
		choice = layerConfidentiality
		ssf = channelSSF

		// AD explicitly requires integrity when requesting confidentiality
		if val, ok := cfg.ExtraProps["ad_compat"]; ok && isTrue(val) {
			choice = layerConfidentiality | layerIntegrity
		}

	case ours&layerIntegrity > 0 && offer&layerIntegrity > 0 && allowedSSF >= 1 && needSSF <= 1:
		choice = layerIntegrity
		ssf = 1
	case ours&layerNone > 0 && offer&layerNone > 0 && needSSF == 0:
		choice = layerNone
		ssf = 0
	default:
		return 0, 0, fmt.Errorf("%w: no suitable security layer available", common.ErrUnsupportedQOP)
	}

	return choice, ssf, nil
}

// msgSize decodes the 3 byte maximum message size of an ssf-cap token
func msgSize(data []byte) uint32 {
	return uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
}

func (m *GSSAPIMech) IsEstablished() bool {
	return (m.state == stateAuthenticated)
}

func (m *GSSAPIMech) ContextParams() common.ContextParams {
	params := common.ContextParams{
		SSF:                m.ssf,
		MaxPeerMessageSize: m.maxOutputBufferSz,
	}
	if m.ssf > 0 {
		params.MaxFrameSize = m.maxInputBufferSz
	}

	return params
}

func (m *GSSAPIMech) Encode(input []byte) (outToken []byte, err error) {
	if m.ssf == 0 {
		return append([]byte{}, input...), nil
	}

	token, err := m.client.Wrap(input, (m.ssf > 1))
	if err != nil {
		return nil, err
	}

	return frame(token), nil
}

func (m *GSSAPIMech) Decode(inputToken []byte) (output []byte, err error) {
	if m.ssf == 0 {
		return append([]byte{}, inputToken...), nil
	}

	token, err := unframe(inputToken, m.maxInputBufferSz)
	if err != nil {
		return nil, err
	}

	output, _, err = m.client.Unwrap(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrIntegrity, err)
	}
	return output, nil
}

// frame prepends the 4 byte length that carries a wrapped token on the
// wire (RFC 4422 § 3.7)
func frame(token []byte) []byte {
	out := make([]byte, 4, 4+len(token))
	binary.BigEndian.PutUint32(out, uint32(len(token)))
	return append(out, token...)
}

// unframe returns the token inside one whole frame
func unframe(in []byte, max uint32) ([]byte, error) {
	if len(in) < 4 {
		return nil, common.ErrNeedsMore
	}

	size := binary.BigEndian.Uint32(in)
	if max > 0 && size > max {
		return nil, fmt.Errorf("%w: frame length %d exceeds buffer size %d", common.ErrIntegrity, size, max)
	}

	total := 4 + uint64(size)
	switch {
	case uint64(len(in)) < total:
		return nil, common.ErrNeedsMore
	case uint64(len(in)) > total:
		return nil, fmt.Errorf("%w: %d trailing bytes after frame", common.ErrIntegrity, uint64(len(in))-total)
	}

	return in[4:], nil
}

func isTrue(val string) bool {
	return val == "1" || val == "y" || val == "on" || val == "t"
}

func minUint(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}
