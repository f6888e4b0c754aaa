package db

import (
	"testing"
	"testing/fstest"
)

func TestMigrationNamesSortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_more.sql": {Data: []byte("select 1")},
		"0001_init.sql": {Data: []byte("select 1")},
		"README.md":     {Data: []byte("docs")},
	}
	names, err := migrationNames(fsys)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) != 2 || names[0] != "0001_init.sql" || names[1] != "0002_more.sql" {
		t.Fatalf("unexpected order: %v", names)
	}
}
