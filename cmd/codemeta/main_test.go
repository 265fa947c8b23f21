package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("codemeta %s: %v\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

func writeSample(t *testing.T, config string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	if config != "" {
		if err := os.WriteFile(filepath.Join(dir, "codemeta.toml"), []byte(config), 0644); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "demo.cmb")
	runCLI(t, "-config", dir, "sample", path)
	return dir, path
}

func TestSampleAndQueries(t *testing.T) {
	dir, path := writeSample(t, "")

	out := runCLI(t, "-config", dir, "list", path)
	if !strings.Contains(out, "app/Main.run()V") || !strings.Contains(out, "3 stops") {
		t.Errorf("list output:\n%s", out)
	}

	out = runCLI(t, "-config", dir, "show", path, "app/Main.run")
	for _, want := range []string{"stop 2 @40 safepoint", "register-refs=[2]", "[20, 32) -> 56", "descriptors: 3 entries, 1 parents"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out = runCLI(t, "-config", dir, "stop", path, "app/Main.run()V", "30")
	for _, want := range []string{"stop 1 @24 indirect-call", "app/Main.helper(I)I @bci 2", "app/Main.run()V @bci 4"} {
		if !strings.Contains(out, want) {
			t.Errorf("stop output missing %q:\n%s", want, out)
		}
	}

	out = runCLI(t, "-config", dir, "catch", path, "app/Main.run", "25")
	if strings.TrimSpace(out) != "handler at 56" {
		t.Errorf("catch 25: got %q", out)
	}
	out = runCLI(t, "-config", dir, "catch", path, "app/Main.run", "32")
	if strings.TrimSpace(out) != "no handler for 32" {
		t.Errorf("catch 32: got %q", out)
	}
	// The built-in amd64 platform does not adjust return addresses.
	out = runCLI(t, "-config", dir, "-caller", "catch", path, "app/Main.run", "32")
	if strings.TrimSpace(out) != "no handler for 32" {
		t.Errorf("catch -caller 32: got %q", out)
	}
}

func TestCallerAdjustmentFromConfig(t *testing.T) {
	dir, path := writeSample(t, `
[platform]
caller-ip-adjustment = -1
`)
	out := runCLI(t, "-config", dir, "-caller", "catch", path, "app/Main.run", "32")
	if strings.TrimSpace(out) != "handler at 56" {
		t.Errorf("catch -caller 32: got %q", out)
	}
	out = runCLI(t, "-config", dir, "catch", path, "app/Main.run", "32")
	if strings.TrimSpace(out) != "no handler for 32" {
		t.Errorf("catch 32: got %q", out)
	}
}

func TestSitesDispatchFromConfig(t *testing.T) {
	dir, path := writeSample(t, `
dispatch = "sites"

[supertypes]
"app/IOError" = "app/Error"
`)
	out := runCLI(t, "-config", dir, "-caller", "-type", "app/IOError", "catch", path, "app/Main.run", "24")
	if strings.TrimSpace(out) != "handler at 56" {
		t.Errorf("got %q", out)
	}
	out = runCLI(t, "-config", dir, "catch", path, "app/Main.run", "24")
	if strings.TrimSpace(out) != "handler at 56" {
		t.Errorf("top frame at 24: got %q", out)
	}
	out = runCLI(t, "-config", dir, "-caller", "catch", path, "app/Main.run", "23")
	if strings.TrimSpace(out) != "no handler for 23" {
		t.Errorf("caller frame at 23: got %q", out)
	}
}

func TestDecode(t *testing.T) {
	out := runCLI(t, "-config", t.TempDir(), "decode", "2b 46 20 04 04")
	for _, want := range []string{"INTEGER_REGISTER_5", "INTEGER_REGISTER", "IMMEDIATE_0"} {
		if !strings.Contains(out, want) {
			t.Errorf("decode output missing %q:\n%s", want, out)
		}
	}
}

func TestErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	dir := t.TempDir()
	cases := [][]string{
		{"-config", dir},
		{"-config", dir, "bogus"},
		{"-config", dir, "decode", "zz"},
		{"-config", dir, "decode", "c8"},
		{"-config", dir, "list", filepath.Join(dir, "missing.cmb")},
	}
	for _, args := range cases {
		if err := run(args, &stdout, &stderr); err == nil {
			t.Errorf("codemeta %s: expected an error", strings.Join(args, " "))
		}
	}
}

func TestParseMethodName(t *testing.T) {
	m, err := parseMethodName("java/util/Map.get(Ljava/lang/Object;)Ljava/lang/Object;")
	if err != nil {
		t.Fatal(err)
	}
	if m.Holder != "java/util/Map" || m.Name != "get" || m.Descriptor != "(Ljava/lang/Object;)Ljava/lang/Object;" {
		t.Errorf("got %+v", m)
	}
	for _, bad := range []string{"noDot", ".x", "x."} {
		if _, err := parseMethodName(bad); err == nil {
			t.Errorf("%q should not parse", bad)
		}
	}
}
