package event

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheReadWrite(t *testing.T) {
	c := NewCache(t.TempDir())

	if _, ok, err := c.Read(testKey, ResourceRecord); err != nil || ok {
		t.Fatalf("Read before write = ok %v, err %v", ok, err)
	}

	if err := c.Write(testKey, ResourceRecord, []byte("first")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Write(testKey, ResourceRecord, []byte("second")); err != nil {
		t.Fatalf("Write (overwrite): %v", err)
	}

	data, ok, err := c.Read(testKey, ResourceRecord)
	if err != nil || !ok {
		t.Fatalf("Read = ok %v, err %v", ok, err)
	}
	if string(data) != "second" {
		t.Errorf("Read = %q, want last write", data)
	}

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir has %d entries, want 1 (no temp files left)", len(entries))
	}
}

func TestCachePaths(t *testing.T) {
	c := NewCache("/var/cache/mrt")
	if got, want := c.Path(testKey, ResourceImage), filepath.Join("/var/cache/mrt", "20160101010203ROVERCAM1.jpg"); got != want {
		t.Errorf("image path = %s, want %s", got, want)
	}
	if got, want := c.Path(testKey, ResourceRecord), filepath.Join("/var/cache/mrt", "20160101010203ROVERCAM1.txt"); got != want {
		t.Errorf("record path = %s, want %s", got, want)
	}
}

func TestKeyURLs(t *testing.T) {
	if got := testKey.String(); got != "20160101010203ROVERCAM1" {
		t.Errorf("String = %s", got)
	}
	if got := RecordURL("http://host/base", testKey); got != "http://host/base/20160101/010203/ROVER/CAM1/event.txt" {
		t.Errorf("RecordURL = %s", got)
	}
	if got := ImageURL("http://host/base//", testKey); got != "http://host/base/20160101/010203/ROVER/CAM1/ROVER-20160101010203-gnomonic-labels.jpg" {
		t.Errorf("ImageURL = %s", got)
	}
}
