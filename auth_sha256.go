package mysql

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
)

func init() {
	RegisterAuthPlugin("sha256_password", func() AuthPlugin { return &sha256PasswordPlugin{} })
}

// sha256PasswordPlugin implements sha256_password. The first Respond
// call asks the server for its RSA public key (a response holding only
// the "request public key" marker); keys stored with
// RegisterServerPubKey are not consulted. The second call XOR-scrambles the password
// against the nonce the same way native auth does for the SHA256 hash,
// then RSA-OAEP encrypts it with the server's key. Grounded on the
// teacher's auth_sha256.go.
type sha256PasswordPlugin struct {
	step      int
	pubKeyPEM []byte
	scramble  []byte
}

func (p *sha256PasswordPlugin) Name() string { return "sha256_password" }

func (p *sha256PasswordPlugin) Respond(serverData []byte, password string) ([]byte, bool, error) {
	switch p.step {
	case 0:
		p.scramble = append([]byte(nil), serverData...)
		p.step = 1
		if password == "" {
			return []byte{0}, true, nil
		}
		return []byte{1}, false, nil // request public key (RSA_ASK_PUBLIC_KEY marker)
	case 1:
		p.pubKeyPEM = serverData
		return p.encryptStep(password)
	default:
		return nil, true, nil
	}
}

func (p *sha256PasswordPlugin) encryptStep(password string) ([]byte, bool, error) {
	plain := xorScramble([]byte(password+"\x00"), p.scramble)
	enc, err := rsaEncryptWithPEM(p.pubKeyPEM, plain)
	if err != nil {
		return nil, false, err
	}
	return enc, true, nil
}

// rsaEncryptWithPEM RSA-OAEP-encrypts plain under the PEM-encoded
// public key pubKeyPEM, as sent by the server in response to an
// RSA_ASK_PUBLIC_KEY request. Shared by sha256_password and
// caching_sha2_password's full-auth fallback. The OAEP padding hash is
// SHA-1 regardless of the plugin's own SHA-256 password hash — that is
// what the MySQL/MariaDB server side expects.
func rsaEncryptWithPEM(pubKeyPEM, plain []byte) ([]byte, error) {
	block, _ := pem.Decode(pubKeyPEM)
	if block == nil {
		return nil, ErrAuthPluginUnsupported
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrAuthPluginUnsupported
	}
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, rsaKey, plain, nil)
}

// xorScramble repeats scramble to the length of data and XORs it in,
// the byte-scrambling step shared by sha256_password and
// caching_sha2_password's full authentication payload.
func xorScramble(data, scramble []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ scramble[i%len(scramble)]
	}
	return out
}
