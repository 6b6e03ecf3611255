package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("  s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		src     Source
		expect  string
		wantErr string
	}{
		{name: "inline", src: Source{Name: "api token", Value: " inline "}, expect: "inline"},
		{name: "file wins", src: Source{Name: "api token", Value: "inline", File: tokenFile}, expect: "s3cret"},
		{name: "missing file", src: Source{Name: "api token", File: filepath.Join(dir, "nope")}, wantErr: "reading api token"},
		{name: "empty file", src: Source{Name: "api token", File: emptyFile}, wantErr: "is empty"},
		{name: "not configured", src: Source{}, wantErr: "secret is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	t.Parallel()

	got, err := LoadOptional(Source{Name: "webhook token"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret, got %q (%v)", got, err)
	}

	if _, err := LoadOptional(Source{Name: "webhook token", File: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatalf("configured but missing file must fail")
	}
}
