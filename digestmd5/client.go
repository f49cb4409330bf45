// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-auth/go-gsasl/common"
)

// Client is the client side of a DIGEST-MD5 exchange
type Client struct {
	sess  common.Session
	state state
	resp  Response
	a1    [md5Len]byte
	keys  sessionKeys
	layer securityLayer
}

// NewClient starts a DIGEST-MD5 client for session s
func NewClient(s common.Session) (common.Mech, error) {
	s.Debugf("new DIGEST-MD5 client")
	return &Client{sess: s, state: stateInitial}, nil
}

func (m *Client) Name() string {
	return mechName
}

func (m *Client) Step(in []byte) (out []byte, done bool, err error) {
	switch m.state {
	case stateInitial:
		// DIGEST-MD5 is server-first; an initial empty step just waits
		// for the challenge
		if len(in) == 0 {
			m.state = stateResponse
			return nil, false, nil
		}
		out, err = m.stepResponse(in)
	case stateResponse:
		out, err = m.stepResponse(in)
	case stateFinal:
		err = m.stepVerify(in)
		done = err == nil
	default:
		return nil, false, common.ErrCalledTooManyTimes
	}

	if err != nil {
		m.sess.Debugf("digest-md5: client step failed in state %s", m.state)
		m.state = stateFailed
		return nil, false, err
	}

	return out, done, nil
}

func (m *Client) stepResponse(in []byte) ([]byte, error) {
	m.sess.Debugf("digest-md5: client parsing challenge")

	ch, err := ParseChallenge(in)
	if err != nil {
		return nil, err
	}

	if ch.QOPs&QOPAuthConf != 0 && ch.Ciphers&Cipher3DES == 0 {
		return nil, parseErr("cipher", "auth-conf offered without 3des")
	}

	qop, err := m.chooseQOP(ch.QOPs)
	if err != nil {
		return nil, err
	}
	m.sess.Debugf("digest-md5: server offered qop [%s], chose %s", ch.QOPs, qop)

	authID, err := m.sess.Property(common.PropAuthID)
	if err != nil {
		return nil, err
	}
	authzID, err := optionalProperty(m.sess, common.PropAuthzID)
	if err != nil {
		return nil, err
	}
	service, err := m.sess.Property(common.PropService)
	if err != nil {
		return nil, err
	}
	host, err := m.sess.Property(common.PropHostname)
	if err != nil {
		return nil, err
	}
	serviceName, err := optionalProperty(m.sess, common.PropServiceName)
	if err != nil {
		return nil, err
	}

	realm, err := optionalProperty(m.sess, common.PropRealm)
	if err != nil {
		return nil, err
	}
	if realm == "" && len(ch.Realms) > 0 {
		realm = ch.Realms[0]
	}

	secret, err := m.secret(authID, realm)
	if err != nil {
		return nil, err
	}

	cnonce, ok := m.sess.PropertyFast(common.PropCNonce)
	if !ok {
		if cnonce, err = newNonce(); err != nil {
			return nil, err
		}
	}

	maxBuf, err := localMaxBuf(m.sess)
	if err != nil {
		return nil, err
	}

	m.resp = Response{
		Username:  authID,
		Realm:     realm,
		Nonce:     ch.Nonce,
		CNonce:    cnonce,
		NC:        1,
		QOP:       qop,
		DigestURI: digestURI(service, host, serviceName),
		MaxBuf:    maxBuf,
		UTF8:      ch.UTF8,
		AuthzID:   authzID,
	}

	m.a1 = computeA1(secret, ch.Nonce, cnonce, authzID)
	m.resp.Response = computeResponse(m.a1, a2ClientPrefix, ch.Nonce, 1, cnonce, qop, m.resp.DigestURI)

	m.keys = deriveKeys(m.a1, 0)
	m.layer = securityLayer{
		qop:        qop,
		sendKey:    m.keys.kic,
		recvKey:    m.keys.kis,
		maxBuf:     maxBuf,
		peerMaxBuf: ch.MaxBuf,
	}

	m.sess.SetProperty(common.PropQOP, qop.String())
	m.state = stateFinal

	return []byte(m.resp.String()), nil
}

// chooseQOP picks the strongest quality of protection that was both
// requested and offered
func (m *Client) chooseQOP(offered QOP) (QOP, error) {
	need, allowed, err := ssfBounds(m.sess.Config())
	if err != nil {
		return 0, err
	}

	want := QOPAuth
	if need > 0 {
		want = QOPAuthInt
	}

	requested, err := optionalProperty(m.sess, common.PropQOP)
	if err != nil {
		return 0, err
	}
	if requested != "" {
		if want = parseQOPProperty(requested); want == 0 {
			return 0, fmt.Errorf("%w: %q", common.ErrUnsupportedQOP, requested)
		}
	}

	want = restrictQOP(want, need, allowed)

	choice := (want & offered &^ QOPAuthConf).Strongest()
	if choice == 0 {
		if want&offered&QOPAuthConf != 0 {
			return 0, fmt.Errorf("%w: auth-conf is not implemented", common.ErrUnsupportedQOP)
		}
		return 0, fmt.Errorf("%w: wanted [%s], server offered [%s]", common.ErrUnsupportedQOP, want, offered)
	}

	return choice, nil
}

// secret returns the base key from the hashed password if one is set,
// otherwise from the password
func (m *Client) secret(authID, realm string) ([md5Len]byte, error) {
	if v, ok := m.sess.PropertyFast(common.PropDigestMD5HashedPassword); ok {
		return parseSecret(v)
	}

	password, err := m.sess.Property(common.PropPassword)
	if err == nil {
		return Secret(authID, realm, password), nil
	}
	if !errors.Is(err, common.ErrNoProperty) {
		return [md5Len]byte{}, err
	}

	v, err2 := m.sess.Property(common.PropDigestMD5HashedPassword)
	if err2 != nil {
		return [md5Len]byte{}, err
	}
	return parseSecret(v)
}

func (m *Client) stepVerify(in []byte) error {
	m.sess.Debugf("digest-md5: client verifying rspauth")

	f, err := ParseFinish(in)
	if err != nil {
		return err
	}

	want := computeResponse(m.a1, a2ServerPrefix, m.resp.Nonce, m.resp.NC, m.resp.CNonce, m.resp.QOP, m.resp.DigestURI)
	if subtle.ConstantTimeCompare([]byte(want), []byte(f.RspAuth)) != 1 {
		return fmt.Errorf("%w: server rspauth mismatch", common.ErrAuthentication)
	}

	m.state = stateAuthenticated
	m.sess.Debugf("digest-md5: client authenticated, qop %s", m.resp.QOP)

	return nil
}

func (m *Client) IsEstablished() bool {
	return m.state == stateAuthenticated
}

func (m *Client) ContextParams() common.ContextParams {
	if m.state != stateAuthenticated {
		return common.ContextParams{}
	}

	return common.ContextParams{
		SSF:                m.layer.ssf(),
		MaxPeerMessageSize: m.layer.maxPeerMessageSize(),
		MaxFrameSize:       m.layer.maxFrameSize(),
	}
}

func (m *Client) Encode(in []byte) ([]byte, error) {
	if m.state != stateAuthenticated {
		return clone(in), nil
	}
	return m.layer.encode(in)
}

func (m *Client) Decode(in []byte) ([]byte, error) {
	if m.state != stateAuthenticated {
		return clone(in), nil
	}
	return m.layer.decode(in)
}

func (m *Client) Finish() {
	m.a1 = [md5Len]byte{}
	m.keys.wipe()
	m.layer.wipe()
	m.resp = Response{}
	m.state = stateFailed
}
