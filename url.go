// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httputils

import (
	"bytes"

	"github.com/valyala/fasthttp"
)

// URLComponents are the parts of a request URL. Path and Query are kept
// as sent, without percent-decoding.
type URLComponents struct {
	Scheme string
	Host   string
	Port   string
	Path   string
	Query  string
}

var schemeSep = []byte("://")

// ParseURL splits a request URL, absolute ("http://host:80/p?q") or
// origin-form ("/p?q"), into its components.
func ParseURL(raw []byte) (URLComponents, error) {
	var uc URLComponents

	u := fasthttp.AcquireURI()
	defer fasthttp.ReleaseURI(u)
	if err := u.Parse(nil, raw); err != nil {
		return uc, err
	}

	if i := bytes.Index(raw, schemeSep); i > 0 && bytes.IndexByte(raw[:i], '/') < 0 {
		uc.Scheme = string(u.Scheme())
		host := u.Host()
		if p := bytes.LastIndexByte(host, ':'); p >= 0 && bytes.IndexByte(host[p:], ']') < 0 {
			uc.Port = string(host[p+1:])
			host = host[:p]
		}
		uc.Host = string(host)
	}
	uc.Path = string(u.PathOriginal())
	uc.Query = string(u.QueryString())
	return uc, nil
}
