package transport

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Context names an execution context a request can be dispatched through:
// the admin surface base URL plus the credentials and pacing that apply
// there.
type Context struct {
	ID      string            `yaml:"id"`
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers"`

	// RequestsPerSecond is a local politeness floor enforced before the
	// provider ever sees the request. Zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Validate checks the fields required to dispatch through this context.
func (c Context) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("execution context id is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("execution context %q: base_url is required", c.ID)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("execution context %q: base_url must be http(s)", c.ID)
	}
	return nil
}

type contextsFile struct {
	Contexts []Context `yaml:"contexts"`
}

// LoadContexts reads execution contexts from a YAML file.
func LoadContexts(path string) ([]Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contexts file: %w", err)
	}

	var file contextsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse contexts file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Contexts))
	for _, c := range file.Contexts {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate execution context id: %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	return file.Contexts, nil
}
