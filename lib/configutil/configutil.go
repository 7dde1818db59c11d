// Package configutil loads json5 config files, their local overrides and
// environment overlays.
package configutil

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// LocalName returns the override file that sits next to name, for
// "conf/app.json5" that is "conf/app.local.json5".
func LocalName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// decodeFile reports found=false for missing or blank files.
func decodeFile[T any](path string, out *T) (found bool, err error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	if err := json5.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	return true, nil
}

// ReadConfig decodes name and then merges LocalName(name) over it, fields
// that are set in the local file win. It returns os.ErrNotExist when
// neither file has content.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found, err := decodeFile(name, &out)
	if err != nil {
		return out, err
	}

	local := LocalName(name)
	var override T
	foundLocal, err := decodeFile(local, &override)
	if err != nil {
		return out, err
	}
	if foundLocal {
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("merged local config overrides", "file", local)
	}

	if !found && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively looks for name in the working directory and each of its
// parents, the first directory that has it wins.
func ReadRecursively[T any](name string) (T, error) {
	var zero T
	dir, err := os.Getwd()
	if err != nil {
		return zero, err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(dir, name))
		if err == nil {
			return config, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return zero, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return zero, os.ErrNotExist
		}
		dir = parent
	}
}

// Load reads the config file at name when present and overlays the
// environment with ReadEnv. A missing file is not an error.
func Load[T any](name, envPrefix string, dotenvFiles ...string) (T, error) {
	out, err := ReadConfig[T](name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return out, err
	}
	if err := ReadEnv(envPrefix, &out, dotenvFiles...); err != nil {
		return out, fmt.Errorf("env: %w", err)
	}
	return out, nil
}
