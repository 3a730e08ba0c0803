// Go MySQL Driver - A MySQL-Driver for Go's database/sql package
//
// Copyright 2023 The Go-MySQL-Driver Authors. All rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package mysql

import (
	"crypto/sha512"

	"filippo.io/edwards25519"
)

func init() {
	RegisterAuthPlugin("client_ed25519", func() AuthPlugin { return &ed25519Plugin{} })
}

// ed25519Plugin implements client_ed25519, as used by MariaDB. Derived
// from MariaDB's plugin/auth_ed25519/ref10/sign.c: the password is
// hashed to a scalar/point pair, then signed over the server's nonce
// with a deterministic variant of Ed25519 signing.
type ed25519Plugin struct{}

func (p *ed25519Plugin) Name() string { return "client_ed25519" }

func (p *ed25519Plugin) Respond(authData []byte, password string) ([]byte, bool, error) {
	h := sha512.Sum512([]byte(password))

	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, false, err
	}
	A := (&edwards25519.Point{}).ScalarBaseMult(s)

	mh := sha512.New()
	mh.Write(h[32:])
	mh.Write(authData)
	messageDigest := mh.Sum(nil)
	r, err := edwards25519.NewScalar().SetUniformBytes(messageDigest)
	if err != nil {
		return nil, false, err
	}

	R := (&edwards25519.Point{}).ScalarBaseMult(r)

	kh := sha512.New()
	kh.Write(R.Bytes())
	kh.Write(A.Bytes())
	kh.Write(authData)
	hramDigest := kh.Sum(nil)
	k, err := edwards25519.NewScalar().SetUniformBytes(hramDigest)
	if err != nil {
		return nil, false, err
	}

	S := k.MultiplyAdd(k, s, r)

	return append(R.Bytes(), S.Bytes()...), true, nil
}
