package mysql

import "crypto/sha1"

func init() {
	RegisterAuthPlugin("mysql_native_password", func() AuthPlugin { return &nativePasswordPlugin{} })
}

// nativePasswordPlugin implements mysql_native_password: a single
// SHA1-based scramble of the password against the server's 20-byte
// nonce, computed as
//
//	SHA1(password) XOR SHA1(scramble + SHA1(SHA1(password)))
//
// Grounded on the teacher's auth_mysql_native.go scramblePassword.
type nativePasswordPlugin struct{}

func (p *nativePasswordPlugin) Name() string { return "mysql_native_password" }

func (p *nativePasswordPlugin) Respond(scramble []byte, password string) ([]byte, bool, error) {
	if password == "" {
		return nil, true, nil
	}
	if len(scramble) < 20 {
		return nil, false, ErrMalformedPacket
	}
	scramble = scramble[:20]

	crypt := sha1.New()
	crypt.Write([]byte(password))
	sha1Pass := crypt.Sum(nil)

	crypt.Reset()
	crypt.Write(sha1Pass)
	sha1Sha1Pass := crypt.Sum(nil)

	crypt.Reset()
	crypt.Write(scramble)
	crypt.Write(sha1Sha1Pass)
	scrambleHash := crypt.Sum(nil)

	for i := range scrambleHash {
		scrambleHash[i] ^= sha1Pass[i]
	}
	return scrambleHash, true, nil
}
