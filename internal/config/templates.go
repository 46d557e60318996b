package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon":
		return daemonTemplate, nil
	case "runtime":
		return runtimeTemplate, nil
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

const daemonTemplate = `[runtime]
mode = "accelerated"
root_device = 0
devices = [0]
root_seed = -1
solver_count = 1
enable_dnn = true
workspace_limit_mb = 0

[status]
name = "tensord"
addr = ":9400"
cors_origins = ["http://localhost:3000"]
`

const runtimeTemplate = `mode = "accelerated"
root_device = 0
devices = [0]
root_seed = -1
solver_count = 1
enable_dnn = true
workspace_limit_mb = 0
`
