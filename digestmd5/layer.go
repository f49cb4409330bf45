// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/golang-auth/go-gsasl/common"
)

// RFC 2831 § 2.3: be32(len) || message || MAC(10) || msgtype(2) || seqnum(4)
const (
	lenPrefixSize = 4
	macSize       = 10
	msgTypeSize   = 2
	seqNumSize    = 4
	trailerSize   = macSize + msgTypeSize + seqNumSize
)

var msgType = [msgTypeSize]byte{0x00, 0x01}

// securityLayer implements the auth-int framing.  With qop auth it is the
// identity mapping; auth-conf is refused.
type securityLayer struct {
	qop        QOP
	sendKey    [md5Len]byte
	recvKey    [md5Len]byte
	sendSeq    uint32
	recvSeq    uint32
	maxBuf     uint32 // largest frame we accept
	peerMaxBuf uint32 // largest frame the peer accepts
}

func (l *securityLayer) ssf() uint {
	if l.qop == QOPAuthInt {
		return 1
	}
	return 0
}

// maxFrameSize is the largest incoming frame the layer accepts
func (l *securityLayer) maxFrameSize() uint32 {
	if l.qop != QOPAuthInt {
		return 0
	}
	return l.maxBuf
}

// maxPeerMessageSize is the largest payload that fits in one frame
// the peer will accept
func (l *securityLayer) maxPeerMessageSize() uint32 {
	if l.qop != QOPAuthInt {
		return l.peerMaxBuf
	}
	if l.peerMaxBuf < trailerSize {
		return 0
	}
	return l.peerMaxBuf - trailerSize
}

func (l *securityLayer) mac(key [md5Len]byte, seq uint32, payload []byte) []byte {
	h := hmac.New(md5.New, key[:])
	var seqBuf [seqNumSize]byte
	binary.BigEndian.PutUint32(seqBuf[:], seq)
	h.Write(seqBuf[:])
	h.Write(payload)
	return h.Sum(nil)[:macSize]
}

func (l *securityLayer) encode(in []byte) ([]byte, error) {
	switch l.qop {
	case QOPAuthConf:
		return nil, fmt.Errorf("%w: confidentiality protection is not implemented", common.ErrIntegrity)
	case QOPAuthInt:
	default:
		return clone(in), nil
	}

	frameLen := len(in) + trailerSize
	if l.peerMaxBuf > 0 && uint64(frameLen) > uint64(l.peerMaxBuf) {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds peer buffer size %d", common.ErrIntegrity, len(in), l.peerMaxBuf)
	}

	out := make([]byte, lenPrefixSize, lenPrefixSize+frameLen)
	binary.BigEndian.PutUint32(out, uint32(frameLen))
	out = append(out, in...)
	out = append(out, l.mac(l.sendKey, l.sendSeq, in)...)
	out = append(out, msgType[:]...)
	out = binary.BigEndian.AppendUint32(out, l.sendSeq)

	l.sendSeq++

	return out, nil
}

func (l *securityLayer) decode(in []byte) ([]byte, error) {
	switch l.qop {
	case QOPAuthConf:
		return nil, fmt.Errorf("%w: confidentiality protection is not implemented", common.ErrIntegrity)
	case QOPAuthInt:
	default:
		return clone(in), nil
	}

	if len(in) < lenPrefixSize {
		return nil, common.ErrNeedsMore
	}

	frameLen := binary.BigEndian.Uint32(in)
	if l.maxBuf > 0 && frameLen > l.maxBuf {
		return nil, fmt.Errorf("%w: frame length %d exceeds buffer size %d", common.ErrIntegrity, frameLen, l.maxBuf)
	}
	if frameLen < trailerSize {
		return nil, fmt.Errorf("%w: frame too short", common.ErrIntegrity)
	}

	total := uint64(lenPrefixSize) + uint64(frameLen)
	if uint64(len(in)) < total {
		return nil, common.ErrNeedsMore
	}
	if uint64(len(in)) > total {
		return nil, fmt.Errorf("%w: %d trailing bytes after frame", common.ErrIntegrity, uint64(len(in))-total)
	}

	frame := in[lenPrefixSize:]
	payload := frame[:len(frame)-trailerSize]
	trailer := frame[len(payload):]

	if !hmac.Equal(trailer[:macSize], l.mac(l.recvKey, l.recvSeq, payload)) {
		return nil, fmt.Errorf("%w: MAC mismatch", common.ErrIntegrity)
	}
	if trailer[macSize] != msgType[0] || trailer[macSize+1] != msgType[1] {
		return nil, fmt.Errorf("%w: bad message type", common.ErrIntegrity)
	}
	if seq := binary.BigEndian.Uint32(trailer[macSize+msgTypeSize:]); seq != l.recvSeq {
		return nil, fmt.Errorf("%w: sequence number %d, expected %d", common.ErrIntegrity, seq, l.recvSeq)
	}

	l.recvSeq++

	return clone(payload), nil
}

func (l *securityLayer) wipe() {
	*l = securityLayer{}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
