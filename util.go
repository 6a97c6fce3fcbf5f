// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binja

import (
	"strings"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// diagnostics is the sink for user-visible reports.
var diagnostics = logrus.StandardLogger()

// warningf reports a user-visible non-fatal diagnostic and continues.
func warningf(format string, args ...interface{}) {
	diagnostics.Warnf(format, args...)
}

// fatalf reports an unrecoverable condition and aborts.
func fatalf(format string, args ...interface{}) {
	diagnostics.Fatalf(format, args...)
}

// unsafeString converts a byte slice into a string without copying. The
// caller must not mutate the bytes afterwards.
func unsafeString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

func isPathSeparator(c byte) bool {
	return c == '/'
}

// CanonicalizePath canonicalizes path, eliminating '.' and '..' components
// and redundant separators.
func CanonicalizePath(path string) string {
	path, _ = CanonicalizePathBits(path)
	return path
}

// CanonicalizePathBits canonicalizes path and returns its slash bits. Only
// '/' is treated as a separator: backslashes stay ordinary characters, so
// the returned slash bits are always 0.
func CanonicalizePathBits(path string) (string, uint64) {
	// WARNING: this function is performance-critical; please benchmark
	// any changes you make to it.
	if len(path) == 0 {
		return path, 0
	}

	const maxPathComponents = 60
	var components [maxPathComponents]int
	componentCount := 0

	// The trailing NUL stands in for the terminator the component loop copies
	// along with the last component.
	buf := make([]byte, len(path)+1)
	copy(buf, path)
	end := len(path)

	dst := 0
	src := 0
	if isPathSeparator(buf[src]) {
		src++
		dst++
	}

	for src < end {
		if buf[src] == '.' {
			if src+1 == end || isPathSeparator(buf[src+1]) {
				// '.' component; eliminate.
				src += 2
				continue
			}
			if buf[src+1] == '.' && (src+2 == end || isPathSeparator(buf[src+2])) {
				// '..' component.  Back up if possible.
				if componentCount > 0 {
					dst = components[componentCount-1]
					src += 3
					componentCount--
				} else {
					buf[dst] = buf[src]
					buf[dst+1] = buf[src+1]
					buf[dst+2] = buf[src+2]
					dst += 3
					src += 3
				}
				continue
			}
		}

		if isPathSeparator(buf[src]) {
			src++
			continue
		}

		if componentCount == maxPathComponents {
			fatalf("path has too many components : %s", path)
		}
		components[componentCount] = dst
		componentCount++

		for src != end && !isPathSeparator(buf[src]) {
			buf[dst] = buf[src]
			dst++
			src++
		}
		// Copy the separator or the trailing NUL as well.
		buf[dst] = buf[src]
		dst++
		src++
	}

	if dst == 0 {
		return ".", 0
	}
	return string(buf[:dst-1]), 0
}

// pathDecanonicalized restores the separators recorded in slashBits.
func pathDecanonicalized(path string, slashBits uint64) string {
	if slashBits == 0 {
		return path
	}
	result := []byte(path)
	mask := uint64(1)
	for i, c := range result {
		if c == '/' {
			if slashBits&mask != 0 {
				result[i] = '\\'
			}
			mask <<= 1
		}
	}
	return unsafeString(result)
}

func isKnownShellSafeChar(c byte) bool {
	if 'A' <= c && c <= 'Z' {
		return true
	}
	if 'a' <= c && c <= 'z' {
		return true
	}
	if '0' <= c && c <= '9' {
		return true
	}
	switch c {
	case '_', '+', '-', '.', '/':
		return true
	}
	return false
}

// shellQuote escapes a word so a POSIX shell reads it literally.
func shellQuote(s string) string {
	safe := true
	for i := 0; i < len(s); i++ {
		if !isKnownShellSafeChar(s[i]) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
