// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/golang-auth/go-gsasl/common"
)

const md5Len = md5.Size

// RFC 2831 § 2.3 and 2.4
const (
	clientSignMagic = "Digest session key to client-to-server signing key magic constant"
	serverSignMagic = "Digest session key to server-to-client signing key magic constant"
	clientSealMagic = "Digest H(A1) to client-to-server sealing key magic constant"
	serverSealMagic = "Digest H(A1) to server-to-client sealing key magic constant"

	a2ClientPrefix = "AUTHENTICATE:"
	a2ServerPrefix = ":"
	a2Suffix       = ":00000000000000000000000000000000"

	nonceEntropyBytes = 8
)

// Secret returns the DIGEST-MD5 base key MD5(username:realm:password).
// The password is NFKC normalised first.
func Secret(username, realm, password string) [md5Len]byte {
	return md5.Sum([]byte(username + ":" + realm + ":" + norm.NFKC.String(password)))
}

// parseSecret decodes a hex encoded secret as stored in the
// DIGEST_MD5_HASHED_PASSWORD property
func parseSecret(v string) (secret [md5Len]byte, err error) {
	b, err := hex.DecodeString(v)
	if err != nil || len(b) != md5Len {
		return secret, fmt.Errorf("%w: hashed password must be %d hex encoded bytes", common.ErrAuthentication, md5Len)
	}
	copy(secret[:], b)
	return secret, nil
}

func computeA1(secret [md5Len]byte, nonce, cnonce, authzid string) [md5Len]byte {
	buf := make([]byte, 0, md5Len+len(nonce)+len(cnonce)+len(authzid)+3)
	buf = append(buf, secret[:]...)
	buf = append(buf, ':')
	buf = append(buf, nonce...)
	buf = append(buf, ':')
	buf = append(buf, cnonce...)
	if authzid != "" {
		buf = append(buf, ':')
		buf = append(buf, authzid...)
	}
	return md5.Sum(buf)
}

// computeResponse returns the hex encoded response-value.  prefix selects
// between the client's response and the server's rspauth.
func computeResponse(a1 [md5Len]byte, prefix, nonce string, nc uint32, cnonce string, qop QOP, digestURI string) string {
	a2 := prefix + digestURI
	if qop&(QOPAuthInt|QOPAuthConf) != 0 {
		a2 += a2Suffix
	}
	ha2 := md5.Sum([]byte(a2))

	kd := fmt.Sprintf("%s:%s:%08x:%s:%s:%s", hex.EncodeToString(a1[:]), nonce, nc, cnonce, qop, hex.EncodeToString(ha2[:]))
	sum := md5.Sum([]byte(kd))
	return hex.EncodeToString(sum[:])
}

// sessionKeys holds the integrity (kic, kis) and confidentiality (kcc,
// kcs) keys for both directions
type sessionKeys struct {
	kic, kis [md5Len]byte
	kcc, kcs [md5Len]byte
}

func deriveKeys(a1 [md5Len]byte, cipher Cipher) (k sessionKeys) {
	sum := func(key []byte, magic string) [md5Len]byte {
		return md5.Sum(append(append([]byte(nil), key...), magic...))
	}

	k.kic = sum(a1[:], clientSignMagic)
	k.kis = sum(a1[:], serverSignMagic)

	n := md5Len
	switch cipher {
	case CipherRC440:
		n = 5
	case CipherRC456:
		n = 7
	}
	k.kcc = sum(a1[:n], clientSealMagic)
	k.kcs = sum(a1[:n], serverSealMagic)

	return k
}

func (k *sessionKeys) wipe() {
	*k = sessionKeys{}
}

// newNonce returns a hex encoded random nonce
func newNonce() (string, error) {
	b := make([]byte, nonceEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %s", common.ErrCrypto, err)
	}
	return hex.EncodeToString(b), nil
}
