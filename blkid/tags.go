// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

// ParseTag splits "NAME=value" into name and value.
//
// The value might be enclosed in single or double quotes.
func ParseTag(tag string) (string, string, error) {
	name, value, ok := strings.Cut(tag, "=")
	if !ok {
		return "", "", fmt.Errorf("%w: tag %q has no value", ErrArgument, tag)
	}

	if name == "" {
		return "", "", fmt.Errorf("%w: tag %q has no name", ErrArgument, tag)
	}

	if value != "" && (value[0] == '"' || value[0] == '\'') {
		end := strings.LastIndexByte(value[1:], value[0])
		if end < 0 {
			return "", "", fmt.Errorf("%w: tag %q has unterminated quote", ErrArgument, tag)
		}

		value = value[1 : end+1]
	}

	return name, value, nil
}

// KnownFilesystemType returns true if there is a superblock detector for the type.
func KnownFilesystemType(name string) bool {
	return chain.Superblocks().Index(name) >= 0
}

// KnownPartitionTableType returns true if there is a partition table detector for the type.
func KnownPartitionTableType(name string) bool {
	return chain.Partitions(chain.Options{}).Index(name) >= 0
}

// allowedChar matches characters which are kept as is in udev-compatible strings.
func allowedChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	default:
		return strings.IndexByte("#+-.:=@_", c) >= 0
	}
}

func isSpace(c byte) bool {
	return c == ' ' || (c >= '\t' && c <= '\r')
}

// SafeString makes the string safe for use in udev-like environments.
//
// Leading and trailing whitespace is removed, whitespace runs are replaced with
// a single underscore, any other disallowed character (except for '/' and valid
// UTF-8 sequences) is replaced with an underscore.
func SafeString(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool { return r < utf8.RuneSelf && isSpace(byte(r)) })

	var sb strings.Builder

	sb.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]

		switch {
		case isSpace(c):
			for i < len(s) && isSpace(s[i]) {
				i++
			}

			sb.WriteByte('_')

			continue
		case c >= utf8.RuneSelf:
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size <= 1 {
				sb.WriteByte('_')
			} else {
				sb.WriteString(s[i : i+size])
			}

			i += size

			continue
		case allowedChar(c) || c == '/':
			sb.WriteByte(c)
		default:
			sb.WriteByte('_')
		}

		i++
	}

	return sb.String()
}

// EncodeString escapes characters which are unsafe in udev-like environments as \xNN.
//
// Valid multibyte UTF-8 sequences are kept.
func EncodeString(s string) string {
	var sb strings.Builder

	sb.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]

		if c >= utf8.RuneSelf {
			if r, size := utf8.DecodeRuneInString(s[i:]); r != utf8.RuneError || size > 1 {
				sb.WriteString(s[i : i+size])
				i += size

				continue
			}
		}

		if allowedChar(c) {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, `\x%02x`, c)
		}

		i++
	}

	return sb.String()
}
