// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/golang-auth/go-gsasl/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 2831 § 4
const (
	rfcUser     = "chris"
	rfcRealm    = "elwood.innosoft.com"
	rfcPassword = "secret"
	rfcNonce    = "OA6MG9tEQGm2hh"
	rfcCNonce   = "OA6MHXh6VqTrRk"
	rfcURI      = "imap/elwood.innosoft.com"
	rfcResp     = "d388dad90d4bbd760a152321f2143af7"
	rfcRspAuth  = "ea40f60335c427b5527b84dbabcdfffd"
)

func TestSecret(t *testing.T) {
	want := md5.Sum([]byte("chris:elwood.innosoft.com:secret"))
	assert.Equal(t, want, Secret(rfcUser, rfcRealm, rfcPassword))

	// both separators are kept when there is no realm
	want = md5.Sum([]byte("chris::secret"))
	assert.Equal(t, want, Secret(rfcUser, "", rfcPassword))

	// the password is NFKC normalised: U+2168 ROMAN NUMERAL NINE becomes "IX"
	assert.Equal(t, Secret("u", "r", "IX"), Secret("u", "r", "Ⅸ"))
}

func TestParseSecret(t *testing.T) {
	secret := Secret(rfcUser, rfcRealm, rfcPassword)

	got, err := parseSecret(hex.EncodeToString(secret[:]))
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	_, err = parseSecret("abcd")
	assert.ErrorIs(t, err, common.ErrAuthentication)
	_, err = parseSecret("not hex")
	assert.ErrorIs(t, err, common.ErrAuthentication)
}

func TestKnownAnswer(t *testing.T) {
	a1 := computeA1(Secret(rfcUser, rfcRealm, rfcPassword), rfcNonce, rfcCNonce, "")

	assert.Equal(t, rfcResp, computeResponse(a1, a2ClientPrefix, rfcNonce, 1, rfcCNonce, QOPAuth, rfcURI))
	assert.Equal(t, rfcRspAuth, computeResponse(a1, a2ServerPrefix, rfcNonce, 1, rfcCNonce, QOPAuth, rfcURI))

	// the response is a pure function of its inputs
	for i := 0; i < 3; i++ {
		again := computeA1(Secret(rfcUser, rfcRealm, rfcPassword), rfcNonce, rfcCNonce, "")
		assert.Equal(t, a1, again)
	}

	// every input contributes
	assert.NotEqual(t, rfcResp, computeResponse(a1, a2ClientPrefix, rfcNonce, 2, rfcCNonce, QOPAuth, rfcURI))
	assert.NotEqual(t, rfcResp, computeResponse(a1, a2ClientPrefix, rfcNonce, 1, rfcCNonce, QOPAuthInt, rfcURI))
	assert.NotEqual(t, rfcResp, computeResponse(a1, a2ClientPrefix, rfcNonce, 1, rfcCNonce, QOPAuth, "imap/other"))

	withAuthz := computeA1(Secret(rfcUser, rfcRealm, rfcPassword), rfcNonce, rfcCNonce, "admin")
	assert.NotEqual(t, a1, withAuthz)
}

func TestComputeResponseIntegrity(t *testing.T) {
	a1 := computeA1(Secret(rfcUser, rfcRealm, rfcPassword), rfcNonce, rfcCNonce, "")

	ha2 := md5.Sum([]byte("AUTHENTICATE:" + rfcURI + ":00000000000000000000000000000000"))
	kd := hex.EncodeToString(a1[:]) + ":" + rfcNonce + ":00000001:" + rfcCNonce + ":auth-int:" + hex.EncodeToString(ha2[:])
	want := md5.Sum([]byte(kd))

	assert.Equal(t, hex.EncodeToString(want[:]), computeResponse(a1, a2ClientPrefix, rfcNonce, 1, rfcCNonce, QOPAuthInt, rfcURI))
}

func TestDeriveKeys(t *testing.T) {
	a1 := computeA1(Secret(rfcUser, rfcRealm, rfcPassword), rfcNonce, rfcCNonce, "")

	k := deriveKeys(a1, 0)
	assert.Equal(t, md5.Sum(append(a1[:], "Digest session key to client-to-server signing key magic constant"...)), k.kic)
	assert.Equal(t, md5.Sum(append(a1[:], "Digest session key to server-to-client signing key magic constant"...)), k.kis)
	assert.Equal(t, md5.Sum(append(a1[:], "Digest H(A1) to client-to-server sealing key magic constant"...)), k.kcc)
	assert.Equal(t, md5.Sum(append(a1[:], "Digest H(A1) to server-to-client sealing key magic constant"...)), k.kcs)
	assert.NotEqual(t, k.kic, k.kis)

	// rc4-40 and rc4-56 truncate A1 for the sealing keys only
	k40 := deriveKeys(a1, CipherRC440)
	assert.Equal(t, k.kic, k40.kic)
	assert.Equal(t, md5.Sum(append(a1[:5:5], "Digest H(A1) to client-to-server sealing key magic constant"...)), k40.kcc)

	k56 := deriveKeys(a1, CipherRC456)
	assert.Equal(t, md5.Sum(append(a1[:7:7], "Digest H(A1) to server-to-client sealing key magic constant"...)), k56.kcs)

	k.wipe()
	assert.Equal(t, sessionKeys{}, k)
}

func TestNonce(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n, err := newNonce()
		require.NoError(t, err)
		assert.Len(t, n, 2*nonceEntropyBytes)
		assert.False(t, seen[n], "duplicate nonce %s", n)
		seen[n] = true
	}
}
