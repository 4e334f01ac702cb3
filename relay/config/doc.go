// Package config loads relay settings from an INI file.
//
// File Format:
//
//	[http]
//	bind_to_address = 0.0.0.0
//	bind_to_port = 4445
//	authentication_key =
//	static_dir = static
//
//	[obsws]
//	ws_address = 127.0.0.1
//	ws_port = 4444
//	ws_password =
//	request_timeout = 30s
//
// An empty authentication_key disables the AuthKey check. Missing keys keep
// their defaults. request_timeout accepts a Go duration ("1m30s") or a bare
// number of seconds.
//
// Usage:
//
//	cfg, err := config.Load("sws_http_config.ini")
//	if errors.Is(err, config.ErrConfigNotFound) {
//		cfg = config.Default()
//	}
package config
