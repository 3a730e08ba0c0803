package mysql

import (
	"crypto/sha256"
)

func init() {
	RegisterAuthPlugin("caching_sha2_password", func() AuthPlugin { return &cachingSha2PasswordPlugin{} })
}

// cachingSha2PasswordPlugin implements caching_sha2_password's fast
// path (XOR-scrambled double-SHA256 against the nonce) and, when the
// server's cache has gone cold, its full-auth fallback (RSA-encrypted
// cleartext password, same as sha256_password). The server signals
// which path to take with a single status byte after the fast-auth
// response: 0x03 means the fast hash matched (fall through to OK),
// 0x04 means send the real password (over TLS that's cleartext plus a
// terminator; otherwise request/receive the RSA key first). Grounded
// on the teacher's auth_caching_sha2.go.
type cachingSha2PasswordPlugin struct {
	step      int
	scramble  []byte
	secure    bool // true when the transport is already TLS or a UNIX socket
	pubKeyPEM []byte
}

func (p *cachingSha2PasswordPlugin) Name() string { return "caching_sha2_password" }

// SetSecureChannel lets Connection tell the plugin its response to a
// fast-auth-miss can be sent in cleartext, skipping the RSA step.
func (p *cachingSha2PasswordPlugin) SetSecureChannel(secure bool) { p.secure = secure }

func (p *cachingSha2PasswordPlugin) Respond(serverData []byte, password string) ([]byte, bool, error) {
	switch p.step {
	case 0:
		p.scramble = append([]byte(nil), serverData...)
		p.step = 1
		if password == "" {
			return []byte{0}, true, nil
		}
		return scrambleSHA256(password, p.scramble), false, nil
	case 1:
		if len(serverData) == 1 {
			switch serverData[0] {
			case 3: // fast-auth success; server will send OK next
				return nil, true, nil
			case 4: // full authentication required
				if p.secure {
					p.step = 3
					resp := make([]byte, len(password)+1)
					copy(resp, password)
					return resp, true, nil
				}
				p.step = 2
				return []byte{2}, false, nil // request public key
			}
		}
		return nil, true, nil
	case 2:
		p.pubKeyPEM = serverData
		p.step = 3
		plain := xorScramble([]byte(password+"\x00"), p.scramble)
		enc, err := rsaEncryptWithPEM(p.pubKeyPEM, plain)
		if err != nil {
			return nil, false, err
		}
		return enc, true, nil
	default:
		return nil, true, nil
	}
}

// scrambleSHA256 computes the fast-auth response:
// SHA256(password) XOR SHA256(SHA256(SHA256(password)) + scramble).
func scrambleSHA256(password string, scramble []byte) []byte {
	h1 := sha256.Sum256([]byte(password))
	h2 := sha256.Sum256(h1[:])

	crypt := sha256.New()
	crypt.Write(h2[:])
	crypt.Write(scramble)
	h3 := crypt.Sum(nil)

	out := make([]byte, len(h1))
	for i := range out {
		out[i] = h1[i] ^ h3[i]
	}
	return out
}
