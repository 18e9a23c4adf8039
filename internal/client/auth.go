package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cli/go-gh/v2/pkg/auth"

	"github.com/markis/saxpush/internal/config"
)

const (
	tokenEnv     = "SAXPUSH_TOKEN"
	tokenHostEnv = "SAXPUSH_TOKEN_HOST"
)

// readJSONFile reads a JSON file and unmarshals it into the provided variable.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

// tokenForHost retrieves a bearer token for host from the environment, the
// hosts file or, for GitHub hosts, the gh CLI credentials. It returns "" when
// none is configured. The environment token only goes to the host named by
// SAXPUSH_TOKEN_HOST.
func tokenForHost(host string) string {
	// Check environment variables first - fast path
	if token := os.Getenv(tokenEnv); token != "" {
		if strings.EqualFold(os.Getenv(tokenHostEnv), host) {
			return token
		}
		log.Debugf("not sending %s to %s", tokenEnv, host)
	}

	if dir, err := config.Dir(); err == nil {
		var hosts map[string]any
		if err := readJSONFile(filepath.Join(dir, "hosts.json"), &hosts); err == nil {
			if token := extractToken(hosts, host); token != "" {
				return token
			}
		}
	}

	if gh := githubHost(host); gh != "" {
		token, source := auth.TokenForHost(gh)
		if token != "" {
			log.Debugf("using %s token for %s from %s", gh, host, source)
		}
		return token
	}
	return ""
}

// extractToken helps extract the token of host from hosts file data shaped
// as {"host": {"token": "..."}}.
func extractToken(hosts map[string]any, host string) string {
	data, ok := hosts[host].(map[string]any)
	if !ok {
		return ""
	}
	if token, ok := data["token"].(string); ok {
		return token
	}
	return ""
}

// githubHost returns the gh CLI host that issues credentials for host, or
// "" when host does not belong to GitHub.
func githubHost(host string) string {
	switch {
	case host == "github.com",
		strings.HasSuffix(host, ".github.com"),
		host == "githubusercontent.com",
		strings.HasSuffix(host, ".githubusercontent.com"):
		return "github.com"
	}
	return ""
}
