// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-auth/go-gsasl/common"
)

// Server is the server side of a DIGEST-MD5 exchange.  It issues the
// challenge, verifies the response and returns rspauth.
type Server struct {
	sess      common.Session
	state     state
	challenge Challenge
	keys      sessionKeys
	layer     securityLayer
}

// NewServer starts a DIGEST-MD5 server for session s
func NewServer(s common.Session) (common.Mech, error) {
	s.Debugf("new DIGEST-MD5 server")
	return &Server{sess: s, state: stateInitial}, nil
}

func (m *Server) Name() string {
	return mechName
}

func (m *Server) Step(in []byte) (out []byte, done bool, err error) {
	switch m.state {
	case stateInitial:
		out, err = m.stepChallenge(in)
	case stateResponse:
		out, err = m.stepVerify(in)
	case stateFinal:
		if len(in) != 0 {
			err = parseErr("", "unexpected data after rspauth")
			break
		}
		m.state = stateAuthenticated
		m.sess.Debugf("digest-md5: server authenticated, qop %s", m.layer.qop)
		done = true
	default:
		return nil, false, common.ErrCalledTooManyTimes
	}

	if err != nil {
		m.sess.Debugf("digest-md5: server step failed in state %s", m.state)
		m.state = stateFailed
		return nil, false, err
	}

	return out, done, nil
}

func (m *Server) stepChallenge(in []byte) ([]byte, error) {
	if len(in) != 0 {
		return nil, parseErr("", "client-first exchange is not supported")
	}

	need, allowed, err := ssfBounds(m.sess.Config())
	if err != nil {
		return nil, err
	}

	offer := QOPAuth | QOPAuthInt
	qops, err := optionalProperty(m.sess, common.PropQOPs)
	if err != nil {
		return nil, err
	}
	if qops != "" {
		offer = parseQOPProperty(qops)
	}
	if offer&QOPAuthConf != 0 {
		return nil, fmt.Errorf("%w: auth-conf is not implemented", common.ErrUnsupportedQOP)
	}
	if offer = restrictQOP(offer, need, allowed); offer == 0 {
		return nil, fmt.Errorf("%w: nothing to offer from %q", common.ErrUnsupportedQOP, qops)
	}

	nonce, ok := m.sess.PropertyFast(common.PropNonce)
	if !ok {
		if nonce, err = newNonce(); err != nil {
			return nil, err
		}
	}

	realms, err := optionalProperty(m.sess, common.PropRealm)
	if err != nil {
		return nil, err
	}

	maxBuf, err := localMaxBuf(m.sess)
	if err != nil {
		return nil, err
	}

	m.challenge = Challenge{
		Realms: splitList(realms),
		Nonce:  nonce,
		QOPs:   offer,
		MaxBuf: maxBuf,
		UTF8:   true,
	}

	m.state = stateResponse
	m.sess.Debugf("digest-md5: server offering qop [%s]", offer)

	return []byte(m.challenge.String()), nil
}

func (m *Server) stepVerify(in []byte) ([]byte, error) {
	m.sess.Debugf("digest-md5: server verifying response")

	r, err := ParseResponse(in)
	if err != nil {
		return nil, err
	}

	if r.Nonce != m.challenge.Nonce {
		return nil, parseErr("nonce", "does not match challenge")
	}
	if r.NC != 1 {
		return nil, parseErr("nc", "must be 00000001")
	}
	if r.QOP&m.challenge.QOPs == 0 {
		return nil, parseErr("qop", "not offered")
	}
	if r.UTF8 && !m.challenge.UTF8 {
		return nil, parseErr("charset", "not offered")
	}

	if err := m.checkDigestURI(r.DigestURI); err != nil {
		return nil, err
	}

	m.sess.SetProperty(common.PropAuthID, r.Username)
	if r.AuthzID != "" {
		m.sess.SetProperty(common.PropAuthzID, r.AuthzID)
	}
	m.sess.SetProperty(common.PropRealm, r.Realm)

	secret, err := m.secret(r.Username, r.Realm)
	if err != nil {
		return nil, err
	}

	a1 := computeA1(secret, r.Nonce, r.CNonce, r.AuthzID)
	want := computeResponse(a1, a2ClientPrefix, r.Nonce, r.NC, r.CNonce, r.QOP, r.DigestURI)
	if subtle.ConstantTimeCompare([]byte(want), []byte(r.Response)) != 1 {
		return nil, fmt.Errorf("%w: response mismatch for %q", common.ErrAuthentication, r.Username)
	}

	if err := m.sess.Callback(common.ValidateDigestMD5); err != nil && !errors.Is(err, common.ErrNoCallback) {
		if common.HasKind(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrAuthentication, err)
	}

	m.keys = deriveKeys(a1, r.Cipher)
	m.layer = securityLayer{
		qop:        r.QOP,
		sendKey:    m.keys.kis,
		recvKey:    m.keys.kic,
		maxBuf:     m.challenge.MaxBuf,
		peerMaxBuf: r.MaxBuf,
	}
	m.sess.SetProperty(common.PropQOP, r.QOP.String())

	f := Finish{RspAuth: computeResponse(a1, a2ServerPrefix, r.Nonce, r.NC, r.CNonce, r.QOP, r.DigestURI)}

	m.state = stateFinal

	return []byte(f.String()), nil
}

// checkDigestURI compares the service and host named by the client with
// the ones this server is configured for
func (m *Server) checkDigestURI(uri string) error {
	service, host, _, err := splitDigestURI(uri)
	if err != nil {
		return err
	}

	if v, ok := m.sess.PropertyFast(common.PropService); ok && v != service {
		return fmt.Errorf("%w: digest-uri service %q, expected %q", common.ErrAuthentication, service, v)
	}
	if v, ok := m.sess.PropertyFast(common.PropHostname); ok && !strings.EqualFold(v, host) {
		return fmt.Errorf("%w: digest-uri host %q, expected %q", common.ErrAuthentication, host, v)
	}

	return nil
}

// secret looks up the hashed password for the user, falling back to the
// clear text password
func (m *Server) secret(username, realm string) ([md5Len]byte, error) {
	v, err := m.sess.Property(common.PropDigestMD5HashedPassword)
	if err == nil {
		return parseSecret(v)
	}
	if !errors.Is(err, common.ErrNoProperty) {
		return [md5Len]byte{}, err
	}

	password, err := m.sess.Property(common.PropPassword)
	if err != nil {
		return [md5Len]byte{}, err
	}

	return Secret(username, realm, password), nil
}

func (m *Server) IsEstablished() bool {
	return m.state == stateAuthenticated
}

func (m *Server) ContextParams() common.ContextParams {
	if m.state != stateAuthenticated {
		return common.ContextParams{}
	}

	return common.ContextParams{
		SSF:                m.layer.ssf(),
		MaxPeerMessageSize: m.layer.maxPeerMessageSize(),
		MaxFrameSize:       m.layer.maxFrameSize(),
	}
}

func (m *Server) Encode(in []byte) ([]byte, error) {
	if m.state != stateAuthenticated {
		return clone(in), nil
	}
	return m.layer.encode(in)
}

func (m *Server) Decode(in []byte) ([]byte, error) {
	if m.state != stateAuthenticated {
		return clone(in), nil
	}
	return m.layer.decode(in)
}

func (m *Server) Finish() {
	m.keys.wipe()
	m.layer.wipe()
	m.challenge = Challenge{}
	m.state = stateFailed
}
