package dump

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/K1ngst0m/Goggles/internal/config"
)

func discardLog() zerolog.Logger { return zerolog.New(io.Discard) }

func TestSanitizeFilenameComponent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"game.exe", "game.exe"},
		{"my game!", "my_game_"},
		{"", "process"},
		{"a/b\\c", "a_b_c"},
	}
	for _, c := range cases {
		if got := sanitizeFilenameComponent(c.in); got != c.want {
			t.Errorf("sanitizeFilenameComponent(%q)\nhave %q\nwant %q", c.in, got, c.want)
		}
	}
}

func TestWritePPMHeaderAndPixels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ppm")

	job := Job{
		Width:  2,
		Height: 1,
		IsBGRA: false,
		Pixels: []byte{
			10, 20, 30, 255,
			40, 50, 60, 255,
		},
	}
	if err := writePPM(path, job); err != nil {
		t.Fatalf("writePPM() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	want := "P6\n2 1\n255\n" + string([]byte{10, 20, 30, 40, 50, 60})
	if string(data) != want {
		t.Errorf("writePPM() contents\nhave %q\nwant %q", data, want)
	}
}

func TestWritePPMSwapsBGRA(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ppm")

	job := Job{
		Width:  1,
		Height: 1,
		IsBGRA: true,
		Pixels: []byte{10, 20, 30, 255}, // B, G, R, A
	}
	if err := writePPM(path, job); err != nil {
		t.Fatalf("writePPM() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	want := "P6\n1 1\n255\n" + string([]byte{30, 20, 10})
	if string(data) != want {
		t.Errorf("writePPM() BGRA swap\nhave %q\nwant %q", data, want)
	}
}

func TestWriteDescContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.desc")

	job := Job{
		FrameNumber: 7,
		Width:       1920,
		Height:      1080,
		Format:      37,
		Source:      SourceInfo{Stride: 7680, Offset: 0, Modifier: 1},
	}
	if err := writeDesc(path, job, "myproc"); err != nil {
		t.Fatalf("writeDesc() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	for _, want := range []string{
		"process_name=myproc\n", "frame_number=7\n", "width=1920\n",
		"height=1080\n", "format=37\n", "stride=7680\n", "offset=0\n", "modifier=1\n",
	} {
		if !contains(string(data), want) {
			t.Errorf("writeDesc() missing %q in\n%s", want, data)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func TestDumperDisabledWithoutDumpDir(t *testing.T) {
	d := New(config.Producer{}, "proc", discardLog())
	defer d.Close()
	if d.IsEnabled() {
		t.Error("IsEnabled()\nhave true\nwant false when DumpDir is empty")
	}
	if d.Schedule(Job{FrameNumber: 1}) {
		t.Error("Schedule() on disabled Dumper\nhave true\nwant false")
	}
}

func TestDumperDisabledWithEmptyRange(t *testing.T) {
	d := New(config.Producer{DumpDir: t.TempDir()}, "proc", discardLog())
	defer d.Close()
	if d.IsEnabled() {
		t.Error("IsEnabled()\nhave true\nwant false when DumpFrameRange is empty")
	}
}

func TestDumperSchedulesAndWritesWithinRange(t *testing.T) {
	dir := t.TempDir()
	d := New(config.Producer{DumpDir: dir, DumpRange: "5"}, "proc", discardLog())
	defer d.Close()

	if !d.IsEnabled() {
		t.Fatal("IsEnabled()\nhave false\nwant true")
	}
	if d.ShouldDumpFrame(4) {
		t.Error("ShouldDumpFrame(4)\nhave true\nwant false (outside \"5\")")
	}
	if !d.ShouldDumpFrame(5) {
		t.Error("ShouldDumpFrame(5)\nhave false\nwant true")
	}

	job := Job{
		FrameNumber: 5,
		Width:       1,
		Height:      1,
		Pixels:      []byte{1, 2, 3, 255},
	}
	if !d.Schedule(job) {
		t.Fatal("Schedule() for in-range frame\nhave false\nwant true")
	}
	if d.Schedule(Job{FrameNumber: 6}) {
		t.Error("Schedule() for out-of-range frame\nhave true\nwant false")
	}

	deadline := time.Now().Add(2 * time.Second)
	var entries []os.DirEntry
	for time.Now().Before(deadline) {
		entries, _ = os.ReadDir(dir)
		if len(entries) >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if len(entries) < 2 {
		t.Fatalf("dump directory contents\nhave %d entries\nwant at least 2 (.ppm + .desc)", len(entries))
	}
}

func TestDumperDropsWhenQueueFull(t *testing.T) {
	dir := t.TempDir()
	d := New(config.Producer{DumpDir: dir, DumpRange: "1-100000"}, "proc", discardLog())
	defer d.Close()

	accepted := 0
	for i := uint64(1); i <= queueCapacity*4; i++ {
		if d.Schedule(Job{FrameNumber: i, Width: 1, Height: 1, Pixels: []byte{0, 0, 0, 0}}) {
			accepted++
		}
	}
	if d.DroppedJobs() == 0 {
		t.Error("DroppedJobs()\nhave 0\nwant > 0 after overflowing the bounded queue")
	}
}
