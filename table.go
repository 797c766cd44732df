// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

var (
	numCharMap = [256]bool{}
	hexValMap  = [256]int8{}
	lowerMap   = [256]byte{}
)

func init() {
	for i := range hexValMap {
		hexValMap[i] = -1
		lowerMap[i] = byte(i)
	}
	for i := byte(0); i < 10; i++ {
		numCharMap['0'+i] = true
		hexValMap['0'+i] = int8(i)
	}
	for i := byte(0); i < 6; i++ {
		hexValMap['A'+i] = int8(10 + i)
		hexValMap['a'+i] = int8(10 + i)
	}
	for i := byte(0); i < 26; i++ {
		lowerMap['A'+i] = 'a' + i
	}
}

func isNum(c byte) bool {
	return numCharMap[c]
}

func isHex(c byte) bool {
	return hexValMap[c] >= 0
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

// equalFold reports whether b equals s under ASCII case folding.
func equalFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		if lowerMap[b[i]] != lowerMap[s[i]] {
			return false
		}
	}
	return true
}

// hasSuffixFold reports whether b ends with s under ASCII case folding.
func hasSuffixFold(b []byte, s string) bool {
	if len(b) < len(s) {
		return false
	}
	return equalFold(b[len(b)-len(s):], s)
}

// indexFold returns the index of the first case-insensitive match of s in b.
func indexFold(b []byte, s string) int {
	if len(s) == 0 {
		return 0
	}
	for i := 0; i+len(s) <= len(b); i++ {
		if equalFold(b[i:i+len(s)], s) {
			return i
		}
	}
	return -1
}

func trimBlankRight(b []byte) []byte {
	for len(b) > 0 && isBlank(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}
