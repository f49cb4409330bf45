// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.

// Package digestmd5 implements the DIGEST-MD5 SASL mechanism (RFC 2831)
// with the auth and auth-int qualities of protection.  auth-conf is
// refused during negotiation.
package digestmd5

import (
	"errors"
	"strings"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/golang-auth/go-gsasl/registry"
)

const mechName = "DIGEST-MD5"

func init() {
	registry.Register(mechName, common.MechProps{
		MaxSSF:             1,
		SecurityProperties: common.SecNoPlainText | common.SecNoAnonymous | common.SecMutualAuth,
		Features:           common.FeatServerFirst | common.FeatSecurityLayer,
	}, NewClient, NewServer)
}

type state uint8

const (
	stateInitial state = iota
	stateResponse
	stateFinal
	stateAuthenticated
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateResponse:
		return "response"
	case stateFinal:
		return "final"
	case stateAuthenticated:
		return "authenticated"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// optionalProperty fetches a property that the mechanism can do without
func optionalProperty(s common.Session, p common.Property) (string, error) {
	v, err := s.Property(p)
	if errors.Is(err, common.ErrNoProperty) {
		return "", nil
	}
	return v, err
}

// localMaxBuf is the maxbuf this side advertises
func localMaxBuf(s common.Session) (uint32, error) {
	v, err := optionalProperty(s, common.PropMaxBuf)
	if err != nil {
		return 0, err
	}
	if v != "" {
		return parseMaxBuf(v)
	}

	n := s.Config().MaxBufSize
	switch {
	case n == 0:
		return DefaultMaxBuf, nil
	case n < MaxBufMin:
		return MaxBufMin, nil
	case n > MaxBufMax:
		return MaxBufMax, nil
	}
	return uint32(n), nil
}

// ssfBounds returns the SSF the mechanism must provide and the SSF it is
// allowed to provide, taking an external layer into account
func ssfBounds(cfg common.MechConfig) (need, allowed uint, err error) {
	if cfg.MinSSF > cfg.ExternalSSF {
		need = cfg.MinSSF - cfg.ExternalSSF
	}
	if cfg.MaxSSF > cfg.ExternalSSF {
		allowed = cfg.MaxSSF - cfg.ExternalSSF
	}

	if need > 1 {
		return 0, 0, common.ErrTooWeak{MechSSF: 1, ExtSSF: cfg.ExternalSSF, RequiredSSF: cfg.MinSSF}
	}

	return need, allowed, nil
}

// restrictQOP removes the qualities of protection that do not satisfy
// the SSF bounds
func restrictQOP(q QOP, need, allowed uint) QOP {
	if need > 0 {
		q &^= QOPAuth
	}
	if allowed < 1 {
		q &^= QOPAuthInt | QOPAuthConf
	}
	return q
}

// digestURI builds serv-type "/" host [ "/" serv-name ]
func digestURI(service, host, serviceName string) string {
	uri := service + "/" + host
	if serviceName != "" && serviceName != host {
		uri += "/" + serviceName
	}
	return uri
}

func splitDigestURI(uri string) (service, host, serviceName string, err error) {
	parts := strings.Split(uri, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", parseErr("digest-uri", "malformed")
	}
	if len(parts) == 3 {
		serviceName = parts[2]
	}
	return parts[0], parts[1], serviceName, nil
}
