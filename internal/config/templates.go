package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "host":
		return hostTemplate, nil
	case "frame":
		return frameTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const hostTemplate = `log_prefix = "[framebridge]"
handshake_warn_after = "10s"
listen_addr = "127.0.0.1:7400"
ws_path = "/bridge"
metrics_path = "/metrics"
unix_socket = ""
allowed_origins = ["http://localhost:3000"]
token = ""
initial_path = "/docs/intro"

[[routes]]
name = "home"
pattern = "/"

[[routes]]
name = "docs"
pattern = "/docs/*"

[[mappings]]
host_prefix = "/docs/"
child_prefix = "/page/"

[tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""
`

const frameTemplate = `log_prefix = "[framebridge:embedded]"
url = "ws://127.0.0.1:7400/bridge"
token = ""
initial_path = "/page/intro"
max_connect_attempts = 0

[tls]
enabled = false
ca_file = ""
server_name = ""
`
