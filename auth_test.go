package mysql

import (
	"fmt"
	"testing"
)

func TestNativePasswordScramble(t *testing.T) {
	scramble := make([]byte, 20)
	for i := range scramble {
		scramble[i] = byte(i + 1)
	}
	p := &nativePasswordPlugin{}
	resp, done, err := p.Respond(scramble, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("expected a single-step plugin")
	}
	if len(resp) != 20 {
		t.Fatalf("expected a 20-byte scramble, got %d", len(resp))
	}

	// The scramble must be deterministic and depend on both the
	// password and the server nonce.
	resp2, _, _ := p.Respond(scramble, "secret")
	if string(resp) != string(resp2) {
		t.Fatal("scramble must be deterministic for the same inputs")
	}
	resp3, _, _ := p.Respond(scramble, "different")
	if string(resp) == string(resp3) {
		t.Fatal("scramble must depend on the password")
	}
}

func TestNativePasswordEmptyPassword(t *testing.T) {
	p := &nativePasswordPlugin{}
	resp, done, err := p.Respond(make([]byte, 20), "")
	if err != nil {
		t.Fatal(err)
	}
	if !done || resp != nil {
		t.Fatalf("expected an empty, final response for an empty password, got %v done=%v", resp, done)
	}
}

func TestScrambleSHA256Password(t *testing.T) {
	scramble := []byte{10, 47, 74, 111, 75, 73, 34, 48, 88, 76, 114, 74, 37, 13, 3, 80, 82, 2, 23, 21}
	vectors := []struct {
		pass string
		out  string
	}{
		{"secret", "f490e76f66d9d86665ce54d98c78d0acfe2fb0b08b423da807144873d30b312c"},
		{"secret2", "abc3934a012cf342e876071c8ee202de51785b430258a7a0138bc79c4d800bc6"},
	}
	for _, v := range vectors {
		got := fmt.Sprintf("%x", scrambleSHA256(v.pass, scramble))
		if got != v.out {
			t.Errorf("scrambleSHA256(%q) = %s, want %s", v.pass, got, v.out)
		}
	}
}

func TestCachingSha2FastAuthSuccess(t *testing.T) {
	p := &cachingSha2PasswordPlugin{}
	scramble := make([]byte, 20)
	if _, done, err := p.Respond(scramble, "secret"); err != nil || done {
		t.Fatalf("step 0: done=%v err=%v", done, err)
	}
	resp, done, err := p.Respond([]byte{3}, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if !done || resp != nil {
		t.Fatalf("expected fast-auth success to finish with no response, got resp=%v done=%v", resp, done)
	}
}

func TestCachingSha2FullAuthOverSecureChannel(t *testing.T) {
	p := &cachingSha2PasswordPlugin{}
	p.SetSecureChannel(true)
	scramble := make([]byte, 20)
	p.Respond(scramble, "secret")
	resp, done, err := p.Respond([]byte{4}, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("expected full auth to finish in one more step over a secure channel")
	}
	if string(resp) != "secret\x00" {
		t.Fatalf("got %q", resp)
	}
}

func TestAuthPluginRegistryLookup(t *testing.T) {
	for _, name := range []string{
		"mysql_native_password",
		"mysql_clear_password",
		"sha256_password",
		"caching_sha2_password",
		"client_ed25519",
	} {
		if _, err := newAuthPlugin(name); err != nil {
			t.Errorf("plugin %q not registered: %v", name, err)
		}
	}
}

func TestAuthPluginRegistryUnknown(t *testing.T) {
	if _, err := newAuthPlugin("not_a_real_plugin"); err == nil {
		t.Fatal("expected an error for an unregistered plugin name")
	}
}
