// Copyright 2021 Jake Scott. All rights reserved.
// Use of this source code is governed by the Apache License
// version 2.0 that can be found in the LICENSE file.
package digestmd5

import (
	"strconv"
	"strings"

	"github.com/golang-auth/go-gsasl/common"
)

// directive is one name=value item of a DIGEST-MD5 token
type directive struct {
	name  string
	value string
}

func isLWS(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func parseErr(dir, reason string) error {
	return &common.ParseError{Directive: dir, Reason: reason}
}

// parseDirectives splits a token into its directives.  Names are folded
// to lower case; quoted values are unescaped.
func parseDirectives(in string) ([]directive, error) {
	var dirs []directive

	i := 0
	skip := func() {
		for i < len(in) && isLWS(in[i]) {
			i++
		}
	}

	skip()
	if i == len(in) {
		return nil, parseErr("", "empty token")
	}

	for {
		skip()
		if i == len(in) {
			return nil, parseErr("", "empty directive")
		}

		start := i
		for i < len(in) && in[i] != '=' && in[i] != ',' && !isLWS(in[i]) {
			if in[i] == '"' {
				return nil, parseErr("", "quote in directive name")
			}
			i++
		}
		name := strings.ToLower(in[start:i])
		if name == "" {
			return nil, parseErr("", "missing directive name")
		}

		d := directive{name: name}

		skip()
		if i < len(in) && in[i] == '=' {
			i++
			skip()

			if i < len(in) && in[i] == '"' {
				i++
				var sb strings.Builder
				closed := false
				for i < len(in) {
					c := in[i]
					if c == '\\' && i+1 < len(in) {
						sb.WriteByte(in[i+1])
						i += 2
						continue
					}
					if c == '"' {
						closed = true
						i++
						break
					}
					sb.WriteByte(c)
					i++
				}
				if !closed {
					return nil, parseErr(name, "unterminated quoted string")
				}
				d.value = sb.String()
			} else {
				start = i
				for i < len(in) && in[i] != ',' && !isLWS(in[i]) {
					if in[i] == '"' {
						return nil, parseErr(name, "unexpected quote")
					}
					i++
				}
				d.value = in[start:i]
			}
		}

		dirs = append(dirs, d)

		skip()
		if i == len(in) {
			return dirs, nil
		}
		if in[i] != ',' {
			return nil, parseErr(name, "expected ','")
		}
		i++
	}
}

// splitList splits the comma separated contents of a list directive
// such as qop-options, dropping empty elements
func splitList(v string) []string {
	var l []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			l = append(l, item)
		}
	}
	return l
}

func quote(v string) string {
	var sb strings.Builder
	sb.Grow(len(v) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(v[i])
	}
	sb.WriteByte('"')
	return sb.String()
}

func parseMaxBuf(v string) (uint32, error) {
	if v == "" {
		return 0, parseErr("maxbuf", "empty value")
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, parseErr("maxbuf", "not a number")
		}
	}

	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n < MaxBufMin || n > MaxBufMax {
		return 0, parseErr("maxbuf", "out of range")
	}

	return uint32(n), nil
}

func isHex(v string, n int) bool {
	if len(v) != n {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// seen tracks directive occurrence counts for the uniqueness rules
type seen map[string]int

func (s seen) once(name string) error {
	s[name]++
	if s[name] > 1 {
		return parseErr(name, "duplicate directive")
	}
	return nil
}

func (s seen) require(names ...string) error {
	for _, n := range names {
		if s[n] == 0 {
			return parseErr(n, "missing directive")
		}
	}
	return nil
}
