package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string // empty means "file does not exist"
		want    Config
		wantErr bool
	}{
		{
			name:    "missing file returns defaults",
			content: "",
			want:    DefaultConfig(),
		},
		{
			name: "jsonc with comments overrides defaults",
			content: `{
				// custom modules root for a test device
				"modules_root": "/data/adb/modules_test",
				"scratch_base": "/dev/hymount_test",
				"disable_umount": true
			}`,
			want: Config{
				ModulesRoot:     "/data/adb/modules_test",
				ScratchBase:     "/dev/hymount_test",
				DisableUmount:   true,
				MaxMountRetries: 3,
			},
		},
		{
			name:    "unknown field rejected",
			content: `{"modules_root": "/x", "bogus_field": true}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := filepath.Join(dir, "config.jsonc")

			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("write config: %v", err)
				}
			}

			got, err := LoadConfig(path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}

				return
			}

			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}

			requireConfigEqual(t, got, tt.want)
		})
	}
}

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	got, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	requireConfigEqual(t, got, DefaultConfig())
}

func requireConfigEqual(t *testing.T, got, want Config) {
	t.Helper()

	if got.ModulesRoot != want.ModulesRoot {
		t.Errorf("ModulesRoot = %q, want %q", got.ModulesRoot, want.ModulesRoot)
	}

	if got.ScratchBase != want.ScratchBase {
		t.Errorf("ScratchBase = %q, want %q", got.ScratchBase, want.ScratchBase)
	}

	if got.DisableUmount != want.DisableUmount {
		t.Errorf("DisableUmount = %v, want %v", got.DisableUmount, want.DisableUmount)
	}

	if got.MaxMountRetries != want.MaxMountRetries {
		t.Errorf("MaxMountRetries = %d, want %d", got.MaxMountRetries, want.MaxMountRetries)
	}

	if len(got.Modules) != len(want.Modules) {
		t.Errorf("Modules = %+v, want %+v", got.Modules, want.Modules)
	}
}
