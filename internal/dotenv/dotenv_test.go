package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# comment\n" +
		"FROM_FILE=loaded\n" +
		"QUOTED=\"hello world\"\n" +
		"SINGLE='single quoted'\n" +
		"export EXPORTED=ok\n" +
		"EXISTING=from_file\n" +
		"malformed line\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("EXISTING", "from_env")
	for _, key := range []string{"FROM_FILE", "QUOTED", "SINGLE", "EXPORTED"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	for key, want := range map[string]string{
		"FROM_FILE": "loaded",
		"QUOTED":    "hello world",
		"SINGLE":    "single quoted",
		"EXPORTED":  "ok",
		"EXISTING":  "from_env",
	} {
		if got := os.Getenv(key); got != want {
			t.Fatalf("%s=%q, want %q", key, got, want)
		}
	}
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		raw  string
		key  string
		val  string
		ok   bool
		name string
	}{
		{raw: "KEY=value", key: "KEY", val: "value", ok: true, name: "plain"},
		{raw: "  KEY = spaced  ", key: "KEY", val: "spaced", ok: true, name: "whitespace trimmed"},
		{raw: "export KEY=value", key: "KEY", val: "value", ok: true, name: "export prefix"},
		{raw: `KEY="quoted value"`, key: "KEY", val: "quoted value", ok: true, name: "double quotes"},
		{raw: "# comment", ok: false, name: "comment"},
		{raw: "", ok: false, name: "blank"},
		{raw: "no equals sign", ok: false, name: "malformed"},
		{raw: "=value", ok: false, name: "empty key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, val, ok := parseLine(tc.raw)
			if ok != tc.ok {
				t.Fatalf("ok=%v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if key != tc.key || val != tc.val {
				t.Fatalf("got %q=%q, want %q=%q", key, val, tc.key, tc.val)
			}
		})
	}
}
