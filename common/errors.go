// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package common

import (
	"errors"
	"fmt"
)

var (
	ErrNoMech             = errors.New("no worthy mechs found")
	ErrUnknownMechanism   = errors.New("unknown mechanism")
	ErrNoCallback         = errors.New("no callback available")
	ErrNoProperty         = errors.New("property not available")
	ErrMechanismParse     = errors.New("mechanism parse error")
	ErrAuthentication     = errors.New("authentication error")
	ErrIntegrity          = errors.New("integrity error")
	ErrCalledTooManyTimes = errors.New("mechanism called too many times")
	ErrCrypto             = errors.New("cryptographic error")
	ErrUnsupportedQOP     = errors.New("unsupported quality of protection")
	ErrNeedsMore          = errors.New("more data needed")
	ErrFinished           = errors.New("session is finished")
	ErrNotEstablished     = errors.New("context is not established")
	ErrMechanism          = errors.New("mechanism error")
)

var kinds = []error{
	ErrNoMech, ErrUnknownMechanism, ErrNoCallback, ErrNoProperty, ErrMechanismParse,
	ErrAuthentication, ErrIntegrity, ErrCalledTooManyTimes, ErrCrypto,
	ErrUnsupportedQOP, ErrNeedsMore, ErrFinished, ErrNotEstablished, ErrMechanism,
}

// HasKind reports whether err wraps one of the package's error kinds
func HasKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}

	var tw ErrTooWeak
	return errors.As(err, &tw)
}

// ParseError describes a malformed or constraint-violating directive in
// a mechanism token.  It always matches ErrMechanismParse.
type ParseError struct {
	Directive string
	Reason    string
}

func (e *ParseError) Error() string {
	if e.Directive == "" {
		return fmt.Sprintf("%s: %s", ErrMechanismParse, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMechanismParse, e.Directive, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMechanismParse
}

type ErrTooWeak struct {
	MechSSF     uint
	ExtSSF      uint
	RequiredSSF uint
}

func (e ErrTooWeak) Error() string {
	if e.ExtSSF > 0 {
		return fmt.Sprintf("negotiated SSF (%d) + external SSF (%d) is less than required SSF (%d)", e.MechSSF, e.ExtSSF, e.RequiredSSF)
	} else {
		return fmt.Sprintf("negotiated SSF (%d) is less than required SSF (%d)", e.MechSSF, e.RequiredSSF)
	}
}
