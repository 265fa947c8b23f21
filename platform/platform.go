// Package platform handles codemeta.toml configuration: the target
// platform parameters that shape compiled-code metadata, and the type
// hierarchy used for typed exception dispatch.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/codemeta/exctable"
	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/refmap"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "codemeta.toml"

var ErrInvalid = errors.New("invalid platform configuration")

// Platform describes the machine the code was generated for.
type Platform struct {
	Name             string `toml:"name"`
	WordSize         int    `toml:"word-size"`
	IntegerRegisters int    `toml:"integer-registers"`
	FloatRegisters   int    `toml:"float-registers"`

	// CallerIPAdjustment is added to a return address before it is used to
	// look up an exception range, so that it falls inside the call. The
	// built-in platforms leave it at 0.
	CallerIPAdjustment int32 `toml:"caller-ip-adjustment"`

	// ReturnPCOffset is the distance from the end of a call instruction to
	// the return address the hardware records.
	ReturnPCOffset int32 `toml:"return-pc-offset"`
}

// Built-in platforms.
var (
	AMD64 = Platform{
		Name:             "amd64",
		WordSize:         8,
		IntegerRegisters: 16,
		FloatRegisters:   16,
		ReturnPCOffset:   0,
	}
	AArch64 = Platform{
		Name:             "aarch64",
		WordSize:         8,
		IntegerRegisters: 32,
		FloatRegisters:   32,
		ReturnPCOffset:   4,
	}
)

// Builtin returns the built-in platform with the given name.
func Builtin(name string) (Platform, bool) {
	switch name {
	case AMD64.Name, "x86_64":
		return AMD64, true
	case AArch64.Name, "arm64":
		return AArch64, true
	}
	return Platform{}, false
}

// RegisterCount is the number of bits in a register reference map. Integer
// registers are numbered first, then floating-point registers.
func (p *Platform) RegisterCount() int {
	return p.IntegerRegisters + p.FloatRegisters
}

// RegisterMapSize returns the byte size of one register reference map.
func (p *Platform) RegisterMapSize() int {
	return refmap.BitMapSize(p.RegisterCount())
}

// FrameMapSize returns the byte size of one frame reference map for a frame
// of the given number of words.
func (p *Platform) FrameMapSize(frameWords int) int {
	return refmap.BitMapSize(frameWords)
}

// Validate checks the platform for impossible values.
func (p *Platform) Validate() error {
	switch {
	case p.WordSize != 4 && p.WordSize != 8:
		return fmt.Errorf("%w: word-size %d", ErrInvalid, p.WordSize)
	case p.IntegerRegisters < 0 || p.FloatRegisters < 0:
		return fmt.Errorf("%w: negative register count", ErrInvalid)
	case p.ReturnPCOffset < 0:
		return fmt.Errorf("%w: return-pc-offset %d", ErrInvalid, p.ReturnPCOffset)
	}
	return nil
}

// Config represents a codemeta.toml file.
type Config struct {
	// Base names a built-in platform whose values fill in the fields the
	// [platform] table leaves out.
	Base     string   `toml:"base"`
	Platform Platform `toml:"platform"`
	Dispatch string   `toml:"dispatch"`

	// Supertypes maps a type to its direct supertype.
	Supertypes map[string]string `toml:"supertypes"`

	// Dir is the directory containing the codemeta.toml file (set at load time).
	Dir string `toml:"-"`
}

// Load parses the codemeta.toml file in dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes configuration text and applies defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	// Defaults
	if c.Base == "" && c.Platform.Name == "" {
		c.Base = AMD64.Name
	}
	if c.Base != "" {
		base, ok := Builtin(c.Base)
		if !ok {
			return nil, fmt.Errorf("%w: unknown base platform %q", ErrInvalid, c.Base)
		}
		c.Platform = mergePlatform(base, c.Platform, md)
	}
	if _, err := exctable.ParseMode(c.Dispatch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Platform.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// mergePlatform overlays the keys actually present in the file onto base.
func mergePlatform(base, file Platform, md toml.MetaData) Platform {
	p := base
	if md.IsDefined("platform", "name") {
		p.Name = file.Name
	}
	if md.IsDefined("platform", "word-size") {
		p.WordSize = file.WordSize
	}
	if md.IsDefined("platform", "integer-registers") {
		p.IntegerRegisters = file.IntegerRegisters
	}
	if md.IsDefined("platform", "float-registers") {
		p.FloatRegisters = file.FloatRegisters
	}
	if md.IsDefined("platform", "caller-ip-adjustment") {
		p.CallerIPAdjustment = file.CallerIPAdjustment
	}
	if md.IsDefined("platform", "return-pc-offset") {
		p.ReturnPCOffset = file.ReturnPCOffset
	}
	return p
}

// FindAndLoad walks up from startDir to find a codemeta.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// DispatchMode returns the configured exception dispatch mode.
func (c *Config) DispatchMode() exctable.Mode {
	m, _ := exctable.ParseMode(c.Dispatch)
	return m
}

// Hierarchy returns the configured supertypes as an exception hierarchy,
// or nil when none are configured.
func (c *Config) Hierarchy() exctable.Hierarchy {
	if len(c.Supertypes) == 0 {
		return nil
	}
	h := make(exctable.Supertypes, len(c.Supertypes))
	for child, parent := range c.Supertypes {
		h[ident.Type(child)] = ident.Type(parent)
	}
	return h
}
