// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MaxBufMin     = 17
	MaxBufMax     = 16777215
	DefaultMaxBuf = 65536

	maxChallengeSize = 2048
	maxResponseSize  = 4096
	maxFinishSize    = 2048
)

// QOP is a set of qualities of protection
type QOP uint8

const (
	QOPAuth QOP = 1 << iota
	QOPAuthInt
	QOPAuthConf
)

var qopNames = []struct {
	q    QOP
	name string
}{
	{QOPAuth, "auth"},
	{QOPAuthInt, "auth-int"},
	{QOPAuthConf, "auth-conf"},
}

// String formats the set as a comma separated list
func (q QOP) String() string {
	var names []string
	for _, n := range qopNames {
		if q&n.q != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// Strongest returns the strongest single QOP in the set
func (q QOP) Strongest() QOP {
	switch {
	case q&QOPAuthConf != 0:
		return QOPAuthConf
	case q&QOPAuthInt != 0:
		return QOPAuthInt
	case q&QOPAuth != 0:
		return QOPAuth
	}
	return 0
}

func qopFromToken(tok string) QOP {
	for _, n := range qopNames {
		if strings.EqualFold(n.name, tok) {
			return n.q
		}
	}
	return 0
}

// ParseQOPList parses a comma separated qop list.  Unknown entries are
// ignored.
func ParseQOPList(v string) QOP {
	var q QOP
	for _, item := range splitList(v) {
		q |= qopFromToken(item)
	}
	return q
}

// parseQOPProperty parses the QOP and QOPS property values, which also
// accept the qop-auth, qop-int and qop-conf spellings
func parseQOPProperty(v string) QOP {
	var q QOP
	for _, item := range splitList(v) {
		switch strings.ToLower(item) {
		case "qop-auth":
			q |= QOPAuth
		case "qop-int":
			q |= QOPAuthInt
		case "qop-conf":
			q |= QOPAuthConf
		default:
			q |= qopFromToken(item)
		}
	}
	return q
}

// Cipher is a set of confidentiality ciphers
type Cipher uint8

const (
	CipherDES Cipher = 1 << iota
	Cipher3DES
	CipherRC4
	CipherRC440
	CipherRC456
	CipherAES
)

var cipherNames = []struct {
	c    Cipher
	name string
}{
	{CipherDES, "des"},
	{Cipher3DES, "3des"},
	{CipherRC4, "rc4"},
	{CipherRC440, "rc4-40"},
	{CipherRC456, "rc4-56"},
	{CipherAES, "aes-cbc"},
}

func (c Cipher) String() string {
	var names []string
	for _, n := range cipherNames {
		if c&n.c != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

func cipherFromToken(tok string) Cipher {
	tok = strings.ToLower(tok)
	if tok == "aes" {
		return CipherAES
	}
	for _, n := range cipherNames {
		if n.name == tok {
			return n.c
		}
	}
	return 0
}

// ParseCipherList parses a comma separated cipher list.  Unknown entries
// are ignored.
func ParseCipherList(v string) Cipher {
	var c Cipher
	for _, item := range splitList(v) {
		c |= cipherFromToken(item)
	}
	return c
}

// Challenge is the server's digest-challenge
type Challenge struct {
	Realms  []string
	Nonce   string
	QOPs    QOP
	Stale   bool
	MaxBuf  uint32
	UTF8    bool
	Ciphers Cipher
}

func ParseChallenge(in []byte) (*Challenge, error) {
	if len(in) >= maxChallengeSize {
		return nil, parseErr("", "challenge too long")
	}

	dirs, err := parseDirectives(string(in))
	if err != nil {
		return nil, err
	}

	c := &Challenge{MaxBuf: DefaultMaxBuf}
	s := seen{}

	for _, d := range dirs {
		switch d.name {
		case "realm":
			c.Realms = append(c.Realms, d.value)
		case "nonce":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if d.value == "" {
				return nil, parseErr(d.name, "empty value")
			}
			c.Nonce = d.value
		case "qop":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if c.QOPs = ParseQOPList(d.value); c.QOPs == 0 {
				return nil, parseErr(d.name, "no recognised qop option")
			}
		case "stale":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if !strings.EqualFold(d.value, "true") {
				return nil, parseErr(d.name, "invalid value")
			}
			c.Stale = true
		case "maxbuf":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if c.MaxBuf, err = parseMaxBuf(d.value); err != nil {
				return nil, err
			}
		case "charset":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if !strings.EqualFold(d.value, "utf-8") {
				return nil, parseErr(d.name, "must be utf-8")
			}
			c.UTF8 = true
		case "algorithm":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if !strings.EqualFold(d.value, "md5-sess") {
				return nil, parseErr(d.name, "must be md5-sess")
			}
		case "cipher":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			c.Ciphers = ParseCipherList(d.value)
		}
		// unknown directives are ignored
	}

	if err := s.require("nonce", "algorithm"); err != nil {
		return nil, err
	}

	if s["qop"] == 0 {
		c.QOPs = QOPAuth
	}

	return c, nil
}

func (c *Challenge) String() string {
	var parts []string
	for _, r := range c.Realms {
		parts = append(parts, "realm="+quote(r))
	}
	parts = append(parts, "nonce="+quote(c.Nonce))
	if c.QOPs != 0 {
		parts = append(parts, "qop="+quote(c.QOPs.String()))
	}
	if c.Stale {
		parts = append(parts, "stale=true")
	}
	if c.MaxBuf != 0 && c.MaxBuf != DefaultMaxBuf {
		parts = append(parts, "maxbuf="+strconv.FormatUint(uint64(c.MaxBuf), 10))
	}
	if c.UTF8 {
		parts = append(parts, "charset=utf-8")
	}
	parts = append(parts, "algorithm=md5-sess")
	if c.Ciphers != 0 {
		parts = append(parts, "cipher="+quote(c.Ciphers.String()))
	}
	return strings.Join(parts, ", ")
}

// Response is the client's digest-response
type Response struct {
	Username  string
	Realm     string
	Nonce     string
	CNonce    string
	NC        uint32
	QOP       QOP
	DigestURI string
	Response  string
	MaxBuf    uint32
	UTF8      bool
	Cipher    Cipher
	AuthzID   string
}

func ParseResponse(in []byte) (*Response, error) {
	if len(in) >= maxResponseSize {
		return nil, parseErr("", "response too long")
	}

	dirs, err := parseDirectives(string(in))
	if err != nil {
		return nil, err
	}

	r := &Response{QOP: QOPAuth, MaxBuf: DefaultMaxBuf}
	s := seen{}

	for _, d := range dirs {
		switch d.name {
		case "username", "realm", "nonce", "cnonce", "digest-uri", "authzid":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if d.name != "realm" && d.value == "" {
				return nil, parseErr(d.name, "empty value")
			}
			switch d.name {
			case "username":
				r.Username = d.value
			case "realm":
				r.Realm = d.value
			case "nonce":
				r.Nonce = d.value
			case "cnonce":
				r.CNonce = d.value
			case "digest-uri":
				r.DigestURI = d.value
			case "authzid":
				r.AuthzID = d.value
			}
		case "nc":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if !isHex(d.value, 8) {
				return nil, parseErr(d.name, "must be 8 hex digits")
			}
			n, _ := strconv.ParseUint(d.value, 16, 32)
			r.NC = uint32(n)
		case "qop":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if r.QOP = qopFromToken(d.value); r.QOP == 0 {
				return nil, parseErr(d.name, "unknown value")
			}
		case "response":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if !isHex(d.value, 32) {
				return nil, parseErr(d.name, "must be 32 hex digits")
			}
			r.Response = strings.ToLower(d.value)
		case "maxbuf":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if r.MaxBuf, err = parseMaxBuf(d.value); err != nil {
				return nil, err
			}
		case "charset":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if !strings.EqualFold(d.value, "utf-8") {
				return nil, parseErr(d.name, "must be utf-8")
			}
			r.UTF8 = true
		case "cipher":
			if err := s.once(d.name); err != nil {
				return nil, err
			}
			if r.Cipher = cipherFromToken(d.value); r.Cipher == 0 {
				return nil, parseErr(d.name, "unknown value")
			}
		}
	}

	if err := s.require("username", "nonce", "cnonce", "nc", "digest-uri", "response"); err != nil {
		return nil, err
	}

	if r.QOP == QOPAuthConf && r.Cipher == 0 {
		return nil, parseErr("cipher", "required with auth-conf")
	}

	return r, nil
}

func (r *Response) String() string {
	parts := []string{"username=" + quote(r.Username)}
	if r.Realm != "" {
		parts = append(parts, "realm="+quote(r.Realm))
	}
	parts = append(parts,
		"nonce="+quote(r.Nonce),
		"cnonce="+quote(r.CNonce),
		fmt.Sprintf("nc=%08x", r.NC),
		"qop="+r.QOP.String(),
		"digest-uri="+quote(r.DigestURI),
		"response="+r.Response,
	)
	if r.MaxBuf != 0 && r.MaxBuf != DefaultMaxBuf {
		parts = append(parts, "maxbuf="+strconv.FormatUint(uint64(r.MaxBuf), 10))
	}
	if r.UTF8 {
		parts = append(parts, "charset=utf-8")
	}
	if r.Cipher != 0 {
		parts = append(parts, "cipher="+r.Cipher.String())
	}
	if r.AuthzID != "" {
		parts = append(parts, "authzid="+quote(r.AuthzID))
	}
	return strings.Join(parts, ", ")
}

// Finish is the server's response-auth token
type Finish struct {
	RspAuth string
}

func ParseFinish(in []byte) (*Finish, error) {
	if len(in) >= maxFinishSize {
		return nil, parseErr("", "finish token too long")
	}

	dirs, err := parseDirectives(string(in))
	if err != nil {
		return nil, err
	}

	f := &Finish{}
	s := seen{}

	for _, d := range dirs {
		if d.name != "rspauth" {
			continue
		}
		if err := s.once(d.name); err != nil {
			return nil, err
		}
		if !isHex(d.value, 32) {
			return nil, parseErr(d.name, "must be 32 hex digits")
		}
		f.RspAuth = strings.ToLower(d.value)
	}

	if err := s.require("rspauth"); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *Finish) String() string {
	return "rspauth=" + f.RspAuth
}
