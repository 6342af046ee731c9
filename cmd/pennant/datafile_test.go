package main

import (
	"os"
	"path/filepath"
	"testing"
)

const jsonFixture = `{
	"schemaVersion": "1",
	"revision": "r1",
	"features": [
		{
			"key": "checkout",
			"bucketBy": "userId",
			"traffic": [{"key": "everyone", "percentage": 100000}]
		}
	]
}`

const yamlFixture = `schemaVersion: "1"
revision: r1
features:
  - key: checkout
    bucketBy: userId
    traffic:
      - key: everyone
        percentage: 100000
`

func writeFixture(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadDatafileJSON(t *testing.T) {
	content, err := loadDatafile(writeFixture(t, "datafile.json", jsonFixture))
	if err != nil {
		t.Fatalf("loadDatafile() error = %v", err)
	}
	if content.Revision != "r1" {
		t.Fatalf("Revision = %q, want r1", content.Revision)
	}
	if len(content.Features) != 1 || content.Features[0].Key != "checkout" {
		t.Fatalf("features decoded incorrectly: %+v", content.Features)
	}
}

func TestLoadDatafileYAML(t *testing.T) {
	content, err := loadDatafile(writeFixture(t, "datafile.yaml", yamlFixture))
	if err != nil {
		t.Fatalf("loadDatafile() error = %v", err)
	}
	if content.Features[0].BucketBy.Single != "userId" {
		t.Fatalf("BucketBy = %+v, want userId", content.Features[0].BucketBy)
	}
	if content.Features[0].Traffic[0].Percentage != 100000 {
		t.Fatalf("Percentage = %d, want 100000", content.Features[0].Traffic[0].Percentage)
	}
}

func TestLoadDatafileMissingFile(t *testing.T) {
	if _, err := loadDatafile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("loadDatafile() for a missing file succeeded")
	}
}

func TestParseContext(t *testing.T) {
	context, err := parseContext(`{"userId": "user-1", "age": 33}`)
	if err != nil {
		t.Fatalf("parseContext() error = %v", err)
	}
	if context["userId"] != "user-1" {
		t.Fatalf("userId = %v", context["userId"])
	}
	if context["age"] != float64(33) {
		t.Fatalf("age = %v, want 33", context["age"])
	}

	if _, err := parseContext(`nope`); err == nil {
		t.Fatal("parseContext() with malformed JSON succeeded")
	}
}
