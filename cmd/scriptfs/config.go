package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/go-scriptfs/scriptfs/internal/classify"
	"github.com/go-scriptfs/scriptfs/internal/mirrorfs"
)

// Config holds everything derived from flags and an optional config file,
// in the layering order spec_full.md §A.3 describes: built-in default
// procedure (applied later, only if nothing else supplied one) → config
// file procedures → -p flags, each layer appending rather than replacing.
type Config struct {
	MirrorPath string
	MountPoint string
	SizeMode   mirrorfs.SizeMode
	FuseOpts   []string
	Procedures []classify.Procedure
	Debug      bool

	ConfigFilePath string
}

// configFile is the optional JSONC document loaded from -c/--config.
type configFile struct {
	Procedures []configProcedure `json:"procedures,omitempty"`
}

// configProcedure is one entry of a config file's "procedures" array,
// mirroring classify's raw -p grammar but split into named JSON fields for
// readability instead of the CLI's single-string encoding.
type configProcedure struct {
	Test    string `json:"test,omitempty"`
	Program string `json:"program"`
	Filter  bool   `json:"filter,omitempty"`
}

// toProcedure builds the raw "-p"-style string this entry describes and
// hands it to classify.ParseProcedure, so the config file and the -p flag
// share exactly one grammar implementation.
func (c configProcedure) toProcedure() (classify.Procedure, error) {
	programHalf := c.Program
	if c.Filter {
		programHalf = "< " + programHalf
	}

	raw := programHalf
	if c.Test != "" {
		raw += ";" + c.Test
	}

	proc, err := classify.ParseProcedure(raw)
	if err != nil {
		return classify.Procedure{}, fmt.Errorf("config: procedure %q: %w", raw, err)
	}

	return proc, nil
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	CLIFlags   *pflag.FlagSet
	Positional []string
}

// LoadConfig parses flags and, if -c/--config names a file, layers its
// procedures ahead of any -p flags (spec_full.md §A.3). The built-in default
// procedure is installed later, by internal/lifecycle, only if the returned
// Config.Procedures ends up empty.
func LoadConfig(input LoadConfigInput) (Config, error) {
	flags := input.CLIFlags

	if len(input.Positional) != 2 {
		return Config{}, fmt.Errorf("expected MIRROR and MOUNTPOINT, got %d positional argument(s)", len(input.Positional))
	}

	cfg := Config{
		MirrorPath: input.Positional[0],
		MountPoint: input.Positional[1],
	}

	if materialized, _ := flags.GetBool("materialized-size"); materialized {
		cfg.SizeMode = mirrorfs.SizeMaterialized
	}

	cfg.FuseOpts, _ = flags.GetStringArray("fuse-option")
	cfg.Debug, _ = flags.GetBool("debug")
	cfg.ConfigFilePath, _ = flags.GetString("config")

	if cfg.ConfigFilePath != "" {
		fileProcs, err := loadConfigFile(cfg.ConfigFilePath)
		if err != nil {
			return Config{}, err
		}

		cfg.Procedures = append(cfg.Procedures, fileProcs...)
	}

	procFlags, _ := flags.GetStringArray("procedure")
	for _, raw := range procFlags {
		proc, err := classify.ParseProcedure(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parsing -p %q: %w", raw, err)
		}

		cfg.Procedures = append(cfg.Procedures, proc)
	}

	return cfg, nil
}

func loadConfigFile(path string) ([]classify.Procedure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var parsed configFile

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	procs := make([]classify.Procedure, 0, len(parsed.Procedures))

	for _, entry := range parsed.Procedures {
		proc, err := entry.toProcedure()
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}

		procs = append(procs, proc)
	}

	return procs, nil
}

