// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package common

import "strings"

type SecurityFlag uint32

const (
	SecNoPlainText     SecurityFlag = 1 << iota // don't permit mechs susceptible to simple passive attack (eg. PLAIN, LOGIN)
	SecNoActive                                 // protection from active (non-dictionary) attacks
	SecNoDictionary                             // don't permit mechanisms susceptible to passive dictionary attack
	SecForwardSecrecy                           // require forward secrecy between sessions
	SecNoAnonymous                              // don't permit mechanisms that allow anonymous login
	SecPassCredentials                          // require mechanisms that pass client credentials
	SecMutualAuth                               // require mechanisms that provide mutual authentication
)

// SecAll is the set of flags a caller may request
const SecAll = SecNoPlainText | SecNoActive | SecNoDictionary | SecForwardSecrecy | SecNoAnonymous | SecPassCredentials | SecMutualAuth

var flagNames = map[SecurityFlag]string{
	SecNoPlainText:     "No plain text mechanisms",
	SecNoActive:        "Active attack protection",
	SecNoDictionary:    "No mechanisms susceptible to dictionary attacks",
	SecForwardSecrecy:  "Require forward secrecy",
	SecNoAnonymous:     "No anonymous mechanisms",
	SecPassCredentials: "Require passing of client credentials",
	SecMutualAuth:      "Require mutual authentication",
}

// FlagList returns a slice of individual flags derived from the
// composite value f
func FlagList(f SecurityFlag) (fl []SecurityFlag) {
	for t := SecurityFlag(1); t != 0; t <<= 1 {
		if f&t != 0 {
			fl = append(fl, t)
		}
	}

	return
}

// FlagName returns a human-readable description of a single flag
func FlagName(f SecurityFlag) string {
	if n, ok := flagNames[f]; ok {
		return n
	}

	return "Unknown"
}

// Missing returns the flags in want that are not provided by have
func (have SecurityFlag) Missing(want SecurityFlag) SecurityFlag {
	return (want ^ have) & want
}

func (f SecurityFlag) String() string {
	var names []string
	for _, fl := range FlagList(f) {
		names = append(names, FlagName(fl))
	}

	return strings.Join(names, ", ")
}
