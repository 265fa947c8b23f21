package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/codemeta/exctable"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary directory with a codemeta.toml
	dir := t.TempDir()
	tomlContent := `
base = "aarch64"
dispatch = "sites"

[platform]
name = "aarch64-custom"
float-registers = 0

[supertypes]
"java/io/IOException" = "java/lang/Exception"
"java/lang/Exception" = "java/lang/Throwable"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p := c.Platform
	if p.Name != "aarch64-custom" {
		t.Errorf("name = %q, want aarch64-custom", p.Name)
	}
	if p.IntegerRegisters != 32 {
		t.Errorf("integer-registers = %d, want 32 (from base)", p.IntegerRegisters)
	}
	if p.FloatRegisters != 0 {
		t.Errorf("float-registers = %d, want 0 (overridden)", p.FloatRegisters)
	}
	if p.CallerIPAdjustment != 0 || p.ReturnPCOffset != 4 {
		t.Errorf("adjustments = %d/%d, want 0/4", p.CallerIPAdjustment, p.ReturnPCOffset)
	}
	if c.DispatchMode() != exctable.ModeSites {
		t.Errorf("dispatch = %v, want sites", c.DispatchMode())
	}
	h := c.Hierarchy()
	if h == nil || !h.AssignableTo("java/io/IOException", "java/lang/Throwable") {
		t.Error("hierarchy should make IOException assignable to Throwable")
	}
	if c.Dir == "" {
		t.Error("Dir should be set")
	}
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Platform != AMD64 {
		t.Errorf("platform = %+v, want AMD64", c.Platform)
	}
	if c.Platform.CallerIPAdjustment != 0 {
		t.Errorf("caller-ip-adjustment = %d, want 0 unless configured", c.Platform.CallerIPAdjustment)
	}
	if c.DispatchMode() != exctable.ModeRanges {
		t.Errorf("dispatch = %v, want ranges", c.DispatchMode())
	}
	if c.Hierarchy() != nil {
		t.Error("hierarchy should be nil without supertypes")
	}
}

func TestParseStandalonePlatform(t *testing.T) {
	c, err := Parse([]byte(`
[platform]
name = "riscv64"
word-size = 8
integer-registers = 32
float-registers = 32
caller-ip-adjustment = -2
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Platform.Name != "riscv64" || c.Platform.CallerIPAdjustment != -2 || c.Platform.ReturnPCOffset != 0 {
		t.Errorf("platform = %+v", c.Platform)
	}
	if got := c.Platform.RegisterMapSize(); got != 8 {
		t.Errorf("RegisterMapSize = %d, want 8", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown base":  `base = "vax"`,
		"bad word size": "[platform]\nname = \"x\"\nword-size = 3\n",
		"bad dispatch":  `dispatch = "sometimes"`,
	}
	for name, text := range tests {
		if _, err := Parse([]byte(text)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: got %v, want ErrInvalid", name, err)
		}
	}
	if _, err := Parse([]byte("[platform")); err == nil {
		t.Error("syntax error should fail")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(`base = "amd64"`), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("expected a config")
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestFrameMapSize(t *testing.T) {
	p := AMD64
	if got := p.FrameMapSize(17); got != 3 {
		t.Errorf("FrameMapSize(17) = %d, want 3", got)
	}
	if got := p.RegisterMapSize(); got != 4 {
		t.Errorf("RegisterMapSize = %d, want 4", got)
	}
}

func TestBuiltin(t *testing.T) {
	for _, name := range []string{"amd64", "x86_64", "aarch64", "arm64"} {
		if _, ok := Builtin(name); !ok {
			t.Errorf("Builtin(%q) not found", name)
		}
	}
	if _, ok := Builtin("sparc"); ok {
		t.Error("Builtin(sparc) should not exist")
	}
}
