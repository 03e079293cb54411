// Package config handles configuration loading for sigv4gate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  dsn: "${SIGV4GATE_DB_DSN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  handshake_timeout: "10s"
//	gate:
//	  clock_skew: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  addr: "0.0.0.0:8443"
//	  cert_file: "/etc/sigv4gate/tls.crt"
//	  key_file: "/etc/sigv4gate/tls.key"
//	  handshake_timeout: "10s"
//
// Authentication gate:
//
//	gate:
//	  region: "us-east-1"
//	  service: "sts"
//	  partition: "aws"
//	  error_namespace: "https://sts.amazonaws.com/doc/2011-06-15/"
//	  allowed_methods: ["GET", "POST"]
//	  allowed_content_types: ["application/x-www-form-urlencoded"]
//	  required_signed_headers: ["x-amz-date"]
//	  clock_skew: "5m"
//	  allow_unsigned_payload: false
//
// Credential database:
//
//	database:
//	  driver: "sqlite"   # sqlite, postgres, sqlserver, ...
//	  dsn: "/var/lib/sigv4gate/credentials.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Listener address presence
//   - TLS cert/key being set together
//   - Region and service presence
//   - Duration format validity
//   - Logging level and format values
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/sigv4gate/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
