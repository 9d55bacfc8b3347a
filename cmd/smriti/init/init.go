// Package initcmder provides the init command for initializing a local
// .smriti directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/pkg/cliui"
	"github.com/localmind/smriti/pkg/config"
)

const (
	dirName    = ".smriti"
	configFile = "config.toml"

	fetchTimeout = 30 * time.Second
)

const initLongDesc string = `Initialize a new .smriti/ directory in the current working directory.

Creates a local .smriti/ directory that takes precedence over the default
~/.smriti/ directory for configuration, the chat cache, the resume state
and the log file. A config.toml with default values is written unless one
already exists.

--preset writes a fresh config.toml, replacing any existing one. It takes
either a preset name (local, kafka) or an http(s) URL serving a config.toml.

Examples:
  smriti init
  smriti init --preset kafka
  smriti init --preset https://example.com/smriti/config.toml`

const initShortDesc string = "Initialize a local .smriti/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Preset name ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func runInit(cmd *cobra.Command, preset string) error {
	out := cmd.OutOrStdout()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	// Resolve the preset before touching the filesystem so a bad name or URL
	// leaves no half-initialized directory behind.
	var data []byte
	if preset != "" {
		data, err = presetTOML(cmd.Context(), preset)
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	case err == nil:
		return fmt.Errorf("%s exists and is not a directory", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .smriti directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .smriti directory: %s\n", dir)
	}

	path := filepath.Join(dir, configFile)
	if data == nil {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
		data, err = encodeConfig(config.NewDefaultConfig())
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(out, "  %s Wrote %s\n", cliui.SuccessMark, cliui.DimStyle.Render(path))
	return nil
}

// presetTOML returns the config.toml contents for a preset name or URL.
func presetTOML(ctx context.Context, preset string) ([]byte, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		data, err := fetchRemote(ctx, preset)
		if err != nil {
			return nil, fmt.Errorf("fetching remote config: %w", err)
		}
		if _, err := config.ParseConfigTOML(data); err != nil {
			return nil, err
		}
		return data, nil
	}

	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return nil, err
	}
	return encodeConfig(cfg)
}

func fetchRemote(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

func encodeConfig(cfg *config.Config) ([]byte, error) {
	data, err := config.EncodeConfigTOML(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}
