// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package common

import "strings"

type Feature uint32

const (
	FeatNeedServerFQDN      Feature = 1 << iota // mech requires the server FQDN
	FeatWantClientFirst                         // mech prefers client to send first
	FeatServerFirst                             // mech only supports server-first
	FeatDontUseUserPassword                     // don't use cleartext passwords
	FeatGSSFraming                              // mechanism uses GSS framing
	FeatSupportsHTTP                            // mechanism can be used for HTTP authentication
	FeatChannelBindings                         // mechanism supports channel bindings
	FeatSecurityLayer                           // mechanism can negotiate a security layer
)

var featureNames = map[Feature]string{
	FeatNeedServerFQDN:      "Mechanism requires the server FQDN",
	FeatWantClientFirst:     "Mechanism prefers client-first protocol",
	FeatServerFirst:         "Mechanism requires server-first protocol",
	FeatDontUseUserPassword: "Don't use clear text passwords",
	FeatGSSFraming:          "Mechanism uses GSSAPI framing",
	FeatSupportsHTTP:        "Mechanism supports HTTP authentication",
	FeatChannelBindings:     "Mechanism supports channel bindings",
	FeatSecurityLayer:       "Mechanism supports a security layer",
}

// FeatureList returns a slice of individual features derived from the
// composite value f
func FeatureList(f Feature) (fl []Feature) {
	for t := Feature(1); t != 0; t <<= 1 {
		if f&t != 0 {
			fl = append(fl, t)
		}
	}

	return
}

// FeatureName returns a human-readable description of a single feature
func FeatureName(f Feature) string {
	if n, ok := featureNames[f]; ok {
		return n
	}

	return "Unknown"
}

func (f Feature) String() string {
	var names []string
	for _, ft := range FeatureList(f) {
		names = append(names, FeatureName(ft))
	}

	return strings.Join(names, ", ")
}
