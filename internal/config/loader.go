package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ORCHESTRATOR_"

	// FallbackAPIKeyEnv is read when no planner API key is configured.
	FallbackAPIKeyEnv = "GROQ_API_KEY"

	systemConfigDir = "/etc/orchestratord"
	maxFileSize     = 1 << 20
)

// Load builds the configuration from defaults, the YAML file at path and
// ORCHESTRATOR_* environment variables, later sources winning. An empty
// path means ~/.config/orchestratord/config.yaml.
//
// The file is optional. When present it must sit under
// ~/.config/orchestratord/ or /etc/orchestratord/, be readable by its
// owner only (0600 or 0400) and be no larger than 1MB.
//
// Environment keys drop the prefix and split on the first underscore:
//
//	ORCHESTRATOR_SERVER_HTTP_PORT -> server.http_port
//	ORCHESTRATOR_PLANNER_API_KEY  -> planner.api_key
//
// Tasks can only be declared in the file. GROQ_API_KEY supplies the planner
// key when no other source does.
func Load(path string) (*Config, error) {
	if path == "" {
		dir, err := userConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	k := koanf.New(".")

	content, err := readConfigFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if !cfg.Planner.APIKey.IsSet() {
		cfg.Planner.APIKey = Secret(os.Getenv(FallbackAPIKeyEnv))
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// readConfigFile checks permissions and size on the open descriptor, so
// the file cannot be swapped between the check and the read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := checkFileInfo(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxFileSize {
		return nil, fmt.Errorf("config file validation failed: file too large (max %d bytes)", maxFileSize)
	}
	return content, nil
}

func checkFileInfo(info fs.FileInfo) error {
	if perm := info.Mode().Perm(); runtime.GOOS != "windows" && perm != 0600 && perm != 0400 {
		return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	return nil
}

// envKey maps ORCHESTRATOR_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + field
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "orchestratord"), nil
}

// validateConfigPath rejects paths outside the two config directories,
// after resolving symlinks when the path exists.
func validateConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	userDir, err := userConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{userDir, systemConfigDir} {
		if isStrictlyWithin(dir, abs) {
			return nil
		}
	}
	return errors.New("config file must be in ~/.config/orchestratord/ or /etc/orchestratord/")
}

// isStrictlyWithin reports whether path lies below dir, not at it.
func isStrictlyWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
