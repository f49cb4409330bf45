// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package common

// Property identifies a value held in a session's property store, or a
// validation request handed to the application callback.
type Property uint16

const (
	PropAuthID Property = iota + 1
	PropAuthzID
	PropPassword
	PropPasscode
	PropPin
	PropSuggestedPin
	PropRealm
	PropService
	PropHostname
	PropServiceName
	PropAnonymousToken

	PropQOPs   // qualities of protection offered by a server
	PropQOP    // quality of protection requested or negotiated
	PropMaxBuf // largest buffer this side will accept
	PropCipher

	PropNonce
	PropCNonce
	PropSalt
	PropIterations
	PropCBTLSUnique
	PropDigestMD5HashedPassword
	PropGSSAPIDisplayName
)

// Validation requests.  The callback returns nil to accept.
const (
	ValidateSimple Property = iota + 500
	ValidateExternal
	ValidateAnonymous
	ValidateGSSAPI
	ValidateDigestMD5
)

var propertyNames = map[Property]string{
	PropAuthID:                  "AUTHID",
	PropAuthzID:                 "AUTHZID",
	PropPassword:                "PASSWORD",
	PropPasscode:                "PASSCODE",
	PropPin:                     "PIN",
	PropSuggestedPin:            "SUGGESTED_PIN",
	PropRealm:                   "REALM",
	PropService:                 "SERVICE",
	PropHostname:                "HOSTNAME",
	PropServiceName:             "SERVICENAME",
	PropAnonymousToken:          "ANONYMOUS_TOKEN",
	PropQOPs:                    "QOPS",
	PropQOP:                     "QOP",
	PropMaxBuf:                  "MAXBUF",
	PropCipher:                  "CIPHER",
	PropNonce:                   "NONCE",
	PropCNonce:                  "CNONCE",
	PropSalt:                    "SALT",
	PropIterations:              "ITERATIONS",
	PropCBTLSUnique:             "CB_TLS_UNIQUE",
	PropDigestMD5HashedPassword: "DIGEST_MD5_HASHED_PASSWORD",
	PropGSSAPIDisplayName:       "GSSAPI_DISPLAY_NAME",
	ValidateSimple:              "VALIDATE_SIMPLE",
	ValidateExternal:            "VALIDATE_EXTERNAL",
	ValidateAnonymous:           "VALIDATE_ANONYMOUS",
	ValidateGSSAPI:              "VALIDATE_GSSAPI",
	ValidateDigestMD5:           "VALIDATE_DIGEST_MD5",
}

func (p Property) String() string {
	if n, ok := propertyNames[p]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsValidation reports whether p is a validation request rather than a
// storable value
func (p Property) IsValidation() bool {
	return p >= ValidateSimple
}
