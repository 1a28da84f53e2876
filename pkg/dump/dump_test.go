package dump_test

import (
	"path/filepath"
	"testing"

	"github.com/arm-debug/probeutil/pkg/dump"
)

func TestWriteByteExtendsAdjacentRun(t *testing.T) {
	img := &dump.Image{Runs: []dump.Run{{Start: 0x1000, Data: []byte{0xAA, 0xBB}}}}
	img.WriteByte(0x1002, 0xCC)
	if len(img.Runs) != 1 {
		t.Fatalf("expected write adjacent to a run to extend it, got %d runs", len(img.Runs))
	}
	if got := img.ReadByte(0x1002); got != 0xCC {
		t.Fatalf("ReadByte(0x1002) = 0x%02x, want 0xCC", got)
	}
}

func TestWriteByteOutsideAnyRunAppendsNewOne(t *testing.T) {
	img := &dump.Image{}
	img.WriteByte(0x2000, 0x11)
	if len(img.Runs) != 1 || img.Runs[0].Start != 0x2000 {
		t.Fatalf("expected a new run at 0x2000, got %+v", img.Runs)
	}
}

func TestReadByteOutsideEveryRunIsZero(t *testing.T) {
	img := &dump.Image{Runs: []dump.Run{{Start: 0x1000, Data: []byte{0xFF}}}}
	if got := img.ReadByte(0x5000); got != 0 {
		t.Fatalf("ReadByte(0x5000) = 0x%02x, want 0", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	img := &dump.Image{Runs: []dump.Run{
		{Start: 0x2000_0000, Data: []byte{1, 2, 3, 4}},
		{Start: 0x0800_0000, Data: []byte{5, 6}},
	}}
	path := filepath.Join(t.TempDir(), "image.json")
	if err := dump.Save(path, img); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := dump.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Runs) != 2 || loaded.Runs[0].Start != 0x0800_0000 {
		t.Fatalf("expected runs sorted by start, got %+v", loaded.Runs)
	}
	if loaded.ReadByte(0x2000_0002) != 3 {
		t.Fatalf("round-tripped data mismatch")
	}
}
