// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package sasl

import (
	"encoding/binary"
	"fmt"

	"github.com/golang-auth/go-gsasl/common"
)

// Decoder accumulates bytes read from the network and returns whole
// messages once they are available.  When the session has a security
// layer the stream is split into frames of a 4 byte big-endian length
// followed by the protected message, and each whole frame, prefix
// included, is passed to Session.Decode.  Otherwise all buffered bytes
// are returned as they arrive.
type Decoder struct {
	s   *Session
	buf []byte
}

// NewDecoder returns a stream decoder for the session.  It should be
// created once the session is established.
func (s *Session) NewDecoder() *Decoder {
	return &Decoder{s: s}
}

// Write appends network input to the decoder's buffer
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes not yet consumed
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next decodes the next message, or returns ErrNeedsMore when the buffer
// does not yet hold a complete frame
func (d *Decoder) Next() ([]byte, error) {
	params := d.s.ContextParams()
	if params.SSF == 0 {
		if len(d.buf) == 0 {
			return nil, common.ErrNeedsMore
		}

		out, err := d.s.Decode(d.buf)
		if err != nil {
			return nil, err
		}
		d.buf = d.buf[:0]
		return out, nil
	}

	if len(d.buf) < 4 {
		return nil, common.ErrNeedsMore
	}

	frameLen := binary.BigEndian.Uint32(d.buf)
	if max := params.MaxFrameSize; max > 0 && frameLen > max {
		return nil, fmt.Errorf("%w: frame length %d exceeds buffer size %d", common.ErrIntegrity, frameLen, max)
	}

	total := 4 + int(frameLen)
	if len(d.buf) < total {
		return nil, common.ErrNeedsMore
	}

	out, err := d.s.Decode(d.buf[:total])
	if err != nil {
		return nil, err
	}

	d.buf = append(d.buf[:0], d.buf[total:]...)
	return out, nil
}
