// Go MySQL Driver - A MySQL-Driver for Go's database/sql package
//
// Copyright 2012 Julien Schmidt. All rights reserved.
// http://www.julienschmidt.com
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package mysql

import (
	"regexp"
	"strconv"
	"strings"
)

// Config holds everything needed to dial and authenticate a
// Connection, per the connection parameters in spec.md §3. It is built
// either directly or by ParseDSN.
type Config struct {
	User     string
	Passwd   string
	Protocol Protocol
	Addr     string // host:port for TCP, socket path for UDS
	DBName   string

	Compress bool
	TLS      string // "", "true", "skip-verify", or a RegisterTLSConfig name

	ServerPubKey string // name registered via RegisterServerPubKey
}

var dsnPattern = regexp.MustCompile(
	`^(?:(?P<user>.*?)(?::(?P<passwd>.*))?@)?` + // [user[:password]@]
		`(?:(?P<net>[^\(]*)(?:\((?P<addr>[^\)]*)\))?)?` + // [net[(addr)]]
		`\/(?P<dbname>.*?)` + // /dbname
		`(?:\?(?P<params>[^\?]*))?$`) // [?param1=value1&paramN=valueN]

// ParseDSN parses a go-sql-driver-style data source name:
//
//	[user[:password]@][net[(addr)]]/dbname[?param1=value1&...]
//
// Recognized params: compress=true, tls=(true|skip-verify|<registered
// name>), serverPubKey=<registered name>. net is "tcp" or "unix"; an
// empty net means "tcp", and anything else falls back to ProtocolAuto.
func ParseDSN(dsn string) (*Config, error) {
	matches := dsnPattern.FindStringSubmatch(dsn)
	if matches == nil {
		return nil, ErrMalformedPacket
	}
	names := dsnPattern.SubexpNames()

	cfg := &Config{Protocol: ProtocolAuto}
	var net string
	for i, match := range matches {
		switch names[i] {
		case "user":
			cfg.User = match
		case "passwd":
			cfg.Passwd = match
		case "net":
			net = match
		case "addr":
			cfg.Addr = match
		case "dbname":
			cfg.DBName = match
		case "params":
			for _, v := range strings.Split(match, "&") {
				if v == "" {
					continue
				}
				kv := strings.SplitN(v, "=", 2)
				if len(kv) != 2 {
					continue
				}
				applyDSNParam(cfg, kv[0], kv[1])
			}
		}
	}

	switch net {
	case "unix":
		cfg.Protocol = ProtocolUDS
	case "tcp", "":
		cfg.Protocol = ProtocolTCP
	default:
		cfg.Protocol = ProtocolAuto
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3306"
	}
	return cfg, nil
}

func applyDSNParam(cfg *Config, key, value string) {
	switch key {
	case "compress":
		b, _ := strconv.ParseBool(value)
		cfg.Compress = b
	case "tls":
		cfg.TLS = value
	case "serverPubKey":
		cfg.ServerPubKey = value
	}
}

// hostPort splits Addr into host and numeric port for TCP dialing.
func (c *Config) hostPort() (host string, port int) {
	idx := strings.LastIndex(c.Addr, ":")
	if idx < 0 {
		return c.Addr, defaultTCPPort
	}
	host = c.Addr[:idx]
	port, err := strconv.Atoi(c.Addr[idx+1:])
	if err != nil {
		return host, defaultTCPPort
	}
	return host, port
}
