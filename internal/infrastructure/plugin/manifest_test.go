package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadManifest_YAML(t *testing.T) {
	dir := t.TempDir()
	writeManifestFile(t, dir, "plugin.yaml", `
name: sila-guard
version: "1.0.0"
description: denylist-based tool veto
author: ngoclaw
main: sila.so
tools:
  - name: veto_check
    description: checks a proposed tool call against the denylist
config:
  max_vetoes:
    type: int
    default: 3
    description: hard stop threshold
    required: false
`)

	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Name != "sila-guard" || m.Version != "1.0.0" {
		t.Errorf("unexpected identity: %+v", m)
	}
	if !m.HasTools() || m.Tools[0].Name != "veto_check" {
		t.Errorf("expected veto_check tool, got %+v", m.Tools)
	}
	field, ok := m.Config["max_vetoes"]
	if !ok || field.Type != "int" {
		t.Errorf("expected max_vetoes int config field, got %+v", m.Config)
	}
}

func TestLoadManifest_YAMLPreferredOverJSON(t *testing.T) {
	dir := t.TempDir()
	writeManifestFile(t, dir, "plugin.yaml", "name: yaml-wins\nversion: \"1.0.0\"\n")
	writeManifestFile(t, dir, "plugin.json", `{"name": "json-loses", "version": "1.0.0"}`)

	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Name != "yaml-wins" {
		t.Errorf("expected plugin.yaml to take priority, got name=%q", m.Name)
	}
}

func TestLoadManifest_JSONFallback(t *testing.T) {
	dir := t.TempDir()
	writeManifestFile(t, dir, "manifest.json", `{"name": "json-plugin", "version": "2.0.0"}`)

	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Name != "json-plugin" || m.Version != "2.0.0" {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestLoadManifest_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadManifest(dir); err == nil {
		t.Fatal("expected error when no manifest file is present")
	}
}

func TestLoadManifest_ValidatesRequiredFields(t *testing.T) {
	dir := t.TempDir()
	writeManifestFile(t, dir, "plugin.yaml", "description: missing name and version\n")

	if _, err := LoadManifest(dir); err == nil {
		t.Fatal("expected validation error for missing name/version")
	}
}
