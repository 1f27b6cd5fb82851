// Package config loads the address layout and run parameters from a JSON file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kmap/internal/trace"
)

// ErrInvalid is returned for malformed or inconsistent configuration.
var ErrInvalid = errors.New("invalid configuration")

// Addr is a base address that may be written as a JSON number or a "0x" hex string.
type Addr uint64

func (a *Addr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n uint64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("address must be a number or hex string: %s", b)
		}
		*a = Addr(n)
		return nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("could not parse hex address %q: %w", s, err)
	}
	*a = Addr(v)
	return nil
}

// File mirrors the on-disk JSON document. Absent keys keep their defaults.
type File struct {
	Debug     *bool   `json:"debug"`
	OutputDir *string `json:"output_dir"`

	NumThreads *int    `json:"NUM_THREADS"`
	SizeKey    *uint64 `json:"SIZE_KEY"`
	SizeInt    *uint64 `json:"SIZE_INT"`
	SizeWeight *uint64 `json:"SIZE_WEIGHT"`
	SizeFeat   *uint64 `json:"SIZE_FEAT"`

	IBase   *Addr `json:"I_BASE"`
	QKBase  *Addr `json:"QK_BASE"`
	QIBase  *Addr `json:"QI_BASE"`
	QOBase  *Addr `json:"QO_BASE"`
	PIVBase *Addr `json:"PIV_BASE"`
	KMBase  *Addr `json:"KM_BASE"`
	WOBase  *Addr `json:"WO_BASE"`
	IVBase  *Addr `json:"IV_BASE"`
	GMBase  *Addr `json:"GM_BASE"`
	WVBase  *Addr `json:"WV_BASE"`

	Stride    *int `json:"STRIDE"`
	TileSize  *int `json:"TILE_SIZE"`
	AddrWidth *int `json:"ADDR_WIDTH"`
}

// Config is the fully resolved run configuration.
type Config struct {
	Layout    trace.Layout
	OutputDir string
	Stride    int
	TileSize  int
	AddrWidth int
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Layout:    trace.DefaultLayout(),
		OutputDir: "out/",
		Stride:    1,
		TileSize:  128,
		AddrWidth: 4,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("Configuration file not found, using defaults")
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := cfg.Decode(data); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Loaded configuration")
	return cfg, nil
}

// Decode applies a JSON document on top of c and validates the result.
func (c *Config) Decode(data []byte) error {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	c.apply(f)
	return c.Validate()
}

func (c *Config) apply(f File) {
	l := &c.Layout
	setBool(&l.Debug, f.Debug)
	if f.OutputDir != nil {
		c.OutputDir = *f.OutputDir
	}
	setInt(&l.NumThreads, f.NumThreads)
	setUint(&l.SizeKey, f.SizeKey)
	setUint(&l.SizeInt, f.SizeInt)
	setUint(&l.SizeWeight, f.SizeWeight)
	setUint(&l.SizeFeat, f.SizeFeat)

	setAddr(&l.IBase, f.IBase)
	setAddr(&l.QKBase, f.QKBase)
	setAddr(&l.QIBase, f.QIBase)
	setAddr(&l.QOBase, f.QOBase)
	setAddr(&l.PIVBase, f.PIVBase)
	setAddr(&l.KMBase, f.KMBase)
	setAddr(&l.WOBase, f.WOBase)
	setAddr(&l.IVBase, f.IVBase)
	setAddr(&l.GMBase, f.GMBase)
	setAddr(&l.WVBase, f.WVBase)
	// Tiles live in the input region.
	l.TileBase = l.IBase

	setInt(&c.Stride, f.Stride)
	setInt(&c.TileSize, f.TileSize)
	setInt(&c.AddrWidth, f.AddrWidth)
}

// Validate checks the layout and run parameters.
func (c *Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Stride < 1 {
		return fmt.Errorf("%w: STRIDE must be at least 1, got %d", ErrInvalid, c.Stride)
	}
	if c.AddrWidth != 4 && c.AddrWidth != 8 {
		return fmt.Errorf("%w: ADDR_WIDTH must be 4 or 8, got %d", ErrInvalid, c.AddrWidth)
	}
	return nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setUint(dst *uint64, v *uint64) {
	if v != nil {
		*dst = *v
	}
}

func setAddr(dst *uint64, v *Addr) {
	if v != nil {
		*dst = uint64(*v)
	}
}
