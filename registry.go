package mysql

import (
	"crypto/tls"
	"fmt"
	"sync"
)

// AuthPlugin implements one server authentication method. Connection
// drives it step by step from the Session State Machine's
// AUTHENTICATING state: Respond is called once with the initial
// handshake scramble, and again each time the server sends an
// AuthSwitchRequest or AuthMoreData naming this plugin, so a plugin
// that needs several round trips (caching_sha2_password's fast-auth /
// full-auth / public-key-request sequence) keeps its own step counter
// internally rather than blocking for replies. Grounded on the
// teacher's auth_plugin.go AuthPlugin interface, reshaped from a single
// blocking call into a resumable step function.
type AuthPlugin interface {
	// Name returns the plugin name as sent on the wire
	// ("mysql_native_password", "caching_sha2_password", ...).
	Name() string

	// Respond computes the next response payload given the server's
	// most recent auth data (the initial scramble, or the payload of an
	// AuthSwitchRequest/AuthMoreData naming this plugin) and the
	// password in use. done is true once no further client message is
	// expected (the plugin considers authentication handed back to the
	// server's OK/ERR decision).
	Respond(serverData []byte, password string) (response []byte, done bool, err error)
}

var (
	pluginRegistryMu sync.RWMutex
	pluginRegistry   = map[string]func() AuthPlugin{}
)

// RegisterAuthPlugin makes an AuthPlugin available for server-driven
// plugin negotiation, keyed by its wire name. The five plugins in this
// package self-register via init().
func RegisterAuthPlugin(name string, factory func() AuthPlugin) {
	pluginRegistryMu.Lock()
	defer pluginRegistryMu.Unlock()
	pluginRegistry[name] = factory
}

func newAuthPlugin(name string) (AuthPlugin, error) {
	pluginRegistryMu.RLock()
	factory, ok := pluginRegistry[name]
	pluginRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAuthPluginUnsupported, name)
	}
	return factory(), nil
}

var (
	tlsConfigMu sync.RWMutex
	tlsConfigs  = map[string]*tls.Config{}
)

// RegisterTLSConfig makes a *tls.Config available to Connect under a
// name, mirroring the teacher's tlsconfig.go RegisterTLSConfig so a
// DSN can reference "tls=myconfig" instead of embedding certificates
// inline.
func RegisterTLSConfig(name string, cfg *tls.Config) error {
	if name == "true" || name == "false" || name == "skip-verify" || name == "preferred" {
		return fmt.Errorf("mysql: config name %q is reserved", name)
	}
	tlsConfigMu.Lock()
	defer tlsConfigMu.Unlock()
	tlsConfigs[name] = cfg
	return nil
}

// DeregisterTLSConfig removes a previously registered configuration.
func DeregisterTLSConfig(name string) {
	tlsConfigMu.Lock()
	defer tlsConfigMu.Unlock()
	delete(tlsConfigs, name)
}

func getTLSConfig(name string) (*tls.Config, bool) {
	tlsConfigMu.RLock()
	defer tlsConfigMu.RUnlock()
	cfg, ok := tlsConfigs[name]
	return cfg, ok
}

var (
	serverPubKeyMu sync.RWMutex
	serverPubKeys  = map[string][]byte{}
)

// RegisterServerPubKey registers a PEM-encoded RSA public key under
// name. The key is only stored: sha256_password and
// caching_sha2_password always request the server's key over the wire,
// and Config.ServerPubKey does not change that. Grounded on the
// teacher's auth.go RegisterServerPubKey.
func RegisterServerPubKey(name string, pubKey []byte) {
	serverPubKeyMu.Lock()
	defer serverPubKeyMu.Unlock()
	serverPubKeys[name] = pubKey
}

// DeregisterServerPubKey removes a previously registered key.
func DeregisterServerPubKey(name string) {
	serverPubKeyMu.Lock()
	defer serverPubKeyMu.Unlock()
	delete(serverPubKeys, name)
}

func getServerPubKey(name string) ([]byte, bool) {
	serverPubKeyMu.RLock()
	defer serverPubKeyMu.RUnlock()
	k, ok := serverPubKeys[name]
	return k, ok
}
