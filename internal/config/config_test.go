package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kmap/internal/trace"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, trace.DefaultLayout(), cfg.Layout)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{
		"debug": true,
		"output_dir": "results/",
		"NUM_THREADS": 8,
		"SIZE_KEY": 8,
		"I_BASE": "0x1000",
		"QK_BASE": 8192,
		"QI_BASE": "0x3000",
		"QO_BASE": "0x4000",
		"PIV_BASE": "0x5000",
		"KM_BASE": "0x6000",
		"WO_BASE": "0x8000",
		"IV_BASE": "0x10000",
		"GM_BASE": "0x80000",
		"WV_BASE": "0xF0000",
		"TILE_SIZE": 32,
		"ADDR_WIDTH": 8
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Layout.Debug)
	assert.Equal(t, "results/", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Layout.NumThreads)
	assert.Equal(t, uint64(8), cfg.Layout.SizeKey)
	assert.Equal(t, uint64(4), cfg.Layout.SizeInt)
	assert.Equal(t, uint64(0x1000), cfg.Layout.IBase)
	assert.Equal(t, uint64(0x1000), cfg.Layout.TileBase)
	assert.Equal(t, uint64(0x2000), cfg.Layout.QKBase)
	assert.Equal(t, uint64(0xF0000), cfg.Layout.WVBase)
	assert.Equal(t, 32, cfg.TileSize)
	assert.Equal(t, 8, cfg.AddrWidth)
	assert.Equal(t, 1, cfg.Stride)
}

func TestDecode_Errors(t *testing.T) {
	cases := map[string]string{
		"malformed json":   `{"NUM_THREADS": }`,
		"bad hex":          `{"I_BASE": "0xZZ"}`,
		"overlapping":      `{"QK_BASE": "0x10000000"}`,
		"bad addr width":   `{"ADDR_WIDTH": 2}`,
		"bad stride":       `{"STRIDE": 0}`,
		"too many threads": `{"NUM_THREADS": 1000}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			assert.ErrorIs(t, cfg.Decode([]byte(doc)), ErrInvalid)
		})
	}
}
