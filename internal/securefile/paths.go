package securefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// EnvFolder maps QA_ENV to the data subfolder. Production uses none.
func EnvFolder() (string, error) {
	switch env := strings.ToLower(strings.TrimSpace(os.Getenv("QA_ENV"))); env {
	case "", "prod", "production":
		return "", nil
	case "local":
		return "local", nil
	case "dev", "develop", "development":
		return "develop", nil
	default:
		return "", fmt.Errorf("invalid QA_ENV %q (allowed: local, develop, empty)", env)
	}
}

// DataDir is the first candidate from ConfigPathCandidates.
func DataDir(app string) (string, error) {
	paths, err := ConfigPathCandidates(app, "")
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// ConfigPathCandidates lists <base>/<app>/<env?>/<filename> for each base,
// most preferred first: $SNAP_REAL_HOME/.config, $HOME/.config, then the
// OS user config dir. An empty filename yields directories.
func ConfigPathCandidates(app, filename string) ([]string, error) {
	if app == "" {
		return nil, errors.New("app must not be empty")
	}
	env, err := EnvFolder()
	if err != nil {
		return nil, err
	}

	var bases []string
	for _, v := range []string{"SNAP_REAL_HOME", "HOME"} {
		if home := os.Getenv(v); home != "" {
			bases = append(bases, filepath.Join(home, ".config"))
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		bases = append(bases, dir)
	} else if len(bases) == 0 {
		return nil, fmt.Errorf("UserConfigDir: %w", err)
	}

	out := make([]string, 0, len(bases))
	for _, b := range bases {
		p := filepath.Join(b, app, env, filename)
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}
