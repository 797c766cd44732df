// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"bytes"
	"math"
)

// Field is one header field found by GetField or NextField. Name and Value
// alias the scanned buffer.
type Field struct {
	Name  []byte
	Value []byte
	// Next is the offset of the line following the field, continuation
	// lines included.
	Next int
}

// GetField finds the first field called name in header, comparing names
// case-insensitively. Leading blanks of the value are skipped and
// continuation lines (starting with a space or tab) extend the value up to
// the end of the last continuation line, line break and indentation
// included. It returns ErrNotFound if no line matches.
func GetField(header []byte, name string) (Field, error) {
	return lookupField(header, name, false)
}

// NextField returns the first line of header that looks like a field,
// which makes it an iterator: continue with header[f.Next:].
func NextField(header []byte) (Field, error) {
	return lookupField(header, "", true)
}

// VisitFields calls fn for every field of header until fn returns false.
func VisitFields(header []byte, fn func(name, value []byte) bool) {
	for len(header) > 0 {
		f, err := NextField(header)
		if err != nil {
			return
		}
		if !fn(f.Name, f.Value) {
			return
		}
		header = header[f.Next:]
	}
}

func lookupField(b []byte, name string, anyName bool) (Field, error) {
	src, end := 0, len(b)
	for {
		line := src
		for src < end && b[src] != '\r' && b[src] != '\n' {
			src++
		}
		if src >= end {
			break
		}
		lineEnd := src
		if src < end && b[src] == '\r' {
			src++
		}
		if src < end && b[src] == '\n' {
			src++
		}

		var nameLen int
		if anyName {
			nameLen = bytes.IndexByte(b[line:lineEnd], ':')
			if nameLen < 0 {
				continue
			}
		} else {
			nameLen = len(name)
			if lineEnd-line <= nameLen || b[line+nameLen] != ':' || !equalFold(b[line:line+nameLen], name) {
				continue
			}
		}

		value := line + nameLen + 1
		valueEnd := lineEnd
		for value < valueEnd && isBlank(b[value]) {
			value++
		}

		for src < end && isBlank(b[src]) {
			src++
			for src < end && b[src] != '\r' && b[src] != '\n' {
				src++
			}
			valueEnd = src
			if src < end && b[src] == '\r' {
				src++
			}
			if src < end && b[src] == '\n' {
				src++
			}
		}

		return Field{
			Name:  b[line : line+nameLen],
			Value: b[value:valueEnd],
			Next:  src,
		}, nil
	}
	return Field{}, ErrNotFound
}

// FieldValue returns the value of the field called name.
func FieldValue(header []byte, name string) ([]byte, error) {
	f, err := GetField(header, name)
	if err != nil {
		return nil, err
	}
	return f.Value, nil
}

// FieldUint parses the value of the field called name as a decimal
// unsigned integer. Parsing stops at the first non-digit; a value without
// leading digits or one that overflows 64 bits is malformed.
func FieldUint(header []byte, name string) (uint64, error) {
	v, err := FieldValue(header, name)
	if err != nil {
		return 0, err
	}
	return parseUint(v)
}

func parseUint(v []byte) (uint64, error) {
	var n uint64
	i := 0
	for ; i < len(v) && isNum(v[i]); i++ {
		d := uint64(v[i] - '0')
		if n > (math.MaxUint64-d)/10 {
			return 0, errInvalidNumber
		}
		n = n*10 + d
	}
	if i == 0 {
		return 0, errInvalidNumber
	}
	return n, nil
}

// FieldEqualFold reports whether the value of the field called name equals
// token, ignoring case and trailing blanks.
func FieldEqualFold(header []byte, name, token string) (bool, error) {
	v, err := FieldValue(header, name)
	if err != nil {
		return false, err
	}
	return equalFold(trimBlankRight(v), token), nil
}

// Field looks up a field of the parsed header.
func (h *Header) Field(name string) ([]byte, error) {
	return FieldValue(h.Raw(), name)
}

// VisitFields calls fn for every field after the start line.
func (h *Header) VisitFields(fn func(name, value []byte) bool) {
	raw := h.Raw()
	if h.Interleaved {
		return
	}
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		VisitFields(raw[i+1:], fn)
	}
}
