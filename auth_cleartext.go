package mysql

func init() {
	RegisterAuthPlugin("mysql_clear_password", func() AuthPlugin { return &clearPasswordPlugin{} })
}

// clearPasswordPlugin sends the password as-is, NUL-terminated. Only
// usable over TLS or a UNIX socket; Connection calls SetSecureChannel
// before Respond, and Respond refuses to send the password in the
// clear when the channel isn't secure. Grounded on the teacher's
// auth_cleartext.go.
type clearPasswordPlugin struct {
	secure bool
}

func (p *clearPasswordPlugin) Name() string { return "mysql_clear_password" }

// SetSecureChannel reports whether the underlying connection is TLS or
// a UNIX socket, neither of which exposes the cleartext password to
// network eavesdroppers.
func (p *clearPasswordPlugin) SetSecureChannel(secure bool) { p.secure = secure }

func (p *clearPasswordPlugin) Respond(serverData []byte, password string) ([]byte, bool, error) {
	if !p.secure {
		return nil, false, ErrAuthPluginUnsupported
	}
	resp := make([]byte, len(password)+1)
	copy(resp, password)
	return resp, true, nil
}
