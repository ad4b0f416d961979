package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveURL(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	// no .env in the working directory is fine
	t.Setenv("WEB_APP_URL", "http://env.example/exec")
	if got, err := resolveURL(""); err != nil || got != "http://env.example/exec" {
		t.Errorf("resolveURL from env = %q, %v", got, err)
	}
	if got, err := resolveURL("http://flag.example/exec"); err != nil || got != "http://flag.example/exec" {
		t.Errorf("resolveURL from flag = %q, %v", got, err)
	}

	// an unreadable .env is reported
	if err := os.Mkdir(filepath.Join(dir, ".env"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := resolveURL(""); err == nil {
		t.Error("expected an error for a .env that cannot be read")
	}
}
