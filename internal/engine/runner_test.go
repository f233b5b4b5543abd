package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ivlev/anonymizer/internal/anonymizer"
	"github.com/ivlev/anonymizer/internal/detection"
	"github.com/ivlev/anonymizer/internal/obfuscation"
	"github.com/ivlev/anonymizer/internal/source"
)

// widthDetector reports one region on images of a given width.
type widthDetector struct {
	width int
	found detection.Region
	err   error
	calls atomic.Int32
}

func (d *widthDetector) Detect(img image.Image, threshold float64) ([]detection.Region, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	if img.Bounds().Dx() == d.width && d.found.Score >= threshold {
		return []detection.Region{d.found}, nil
	}
	return nil, nil
}

var face = detection.Region{YMin: 1, XMin: 2, YMax: 6, XMax: 9, Score: 0.92, Kind: "face"}

func newPipeline(t *testing.T, d detection.Detector) *anonymizer.Anonymizer {
	t.Helper()
	fill, err := obfuscation.NewObfuscator("fill", obfuscation.Params{Color: "#000000"})
	if err != nil {
		t.Fatal(err)
	}
	return anonymizer.New(fill, map[string]detection.Detector{"face": d}, map[string]float64{"face": 0.5})
}

// everyDetector reports the same region on every page it sees.
type everyDetector struct {
	found detection.Region
	calls atomic.Int32
}

func (d *everyDetector) Detect(img image.Image, threshold float64) ([]detection.Region, error) {
	d.calls.Add(1)
	return []detection.Region{d.found}, nil
}

// twoPagePDF returns a minimal PDF with two blank 72x36pt pages.
func twoPagePDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 36] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 36] >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	if err := source.Save(path, img, 95); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestScenario(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeImage(t, filepath.Join(in, "img1.jpg"), 20, 10)
	writeImage(t, filepath.Join(in, "img2.png"), 10, 10)

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 2}, nil)
	summary, err := runner.Run(context.Background(), in, out, []string{"jpg", "png"}, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Total != 2 || summary.Processed != 2 || summary.Regions != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	for _, name := range []string{"img1.jpg", "img2.png"} {
		if !exists(filepath.Join(out, name)) {
			t.Errorf("Missing output image %s", name)
		}
	}

	got, err := detection.ReadSidecar(filepath.Join(out, "img1.json"))
	if err != nil {
		t.Fatalf("ReadSidecar img1 failed: %v", err)
	}
	if !reflect.DeepEqual(got, []detection.Region{face}) {
		t.Errorf("img1.json: got %+v", got)
	}

	data, err := os.ReadFile(filepath.Join(out, "img2.json"))
	if err != nil {
		t.Fatalf("Read img2.json failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("img2.json: expected [], got %q", data)
	}

	img, err := source.Load(filepath.Join(out, "img2.png"))
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(3, 3); c != (color.RGBA{R: 200, G: 200, B: 200, A: 255}) {
		t.Errorf("img2 without detections changed: %v", c)
	}
}

func TestPathMirroring(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "a", "b", "c.png"), 20, 10)

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 1}, nil)
	if _, err := runner.Run(context.Background(), in, out, []string{"png"}, true); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !exists(filepath.Join(out, "a", "b", "c.png")) {
		t.Error("Output image not mirrored to a/b/c.png")
	}
	if !exists(filepath.Join(out, "a", "b", "c.json")) {
		t.Error("Sidecar not written to a/b/c.json")
	}

	img, err := source.Load(filepath.Join(out, "a", "b", "c.png"))
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(4, 3); c != (color.RGBA{A: 255}) {
		t.Errorf("Region not obfuscated, pixel %v", c)
	}
}

func TestPDFPages(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(in, "docs", "doc.pdf"), string(twoPagePDF()))

	d := &everyDetector{found: face}
	runner := NewRunner(newPipeline(t, d), Options{Workers: 2, DPI: 72}, nil)
	summary, err := runner.Run(context.Background(), in, out, []string{"pdf"}, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Total != 1 || summary.Processed != 1 || summary.Regions != 2 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if n := d.calls.Load(); n != 2 {
		t.Errorf("Expected one detection per page, got %d", n)
	}

	for _, page := range []string{"doc_p0001", "doc_p0002"} {
		img, err := source.Load(filepath.Join(out, "docs", page+".png"))
		if err != nil {
			t.Fatalf("Load %s.png failed: %v", page, err)
		}
		if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
			t.Errorf("%s.png is empty", page)
		}
		if c := img.RGBAAt(4, 3); c != (color.RGBA{A: 255}) {
			t.Errorf("%s.png: region not obfuscated, pixel %v", page, c)
		}

		got, err := detection.ReadSidecar(filepath.Join(out, "docs", page+".json"))
		if err != nil {
			t.Fatalf("ReadSidecar %s failed: %v", page, err)
		}
		if !reflect.DeepEqual(got, []detection.Region{face}) {
			t.Errorf("%s.json: got %+v", page, got)
		}
	}

	for _, name := range []string{"doc.pdf", "doc.png", "doc_p0003.png"} {
		if exists(filepath.Join(out, "docs", name)) {
			t.Errorf("Unexpected output %s", name)
		}
	}
}

func TestNoDirectoryForUndecodable(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(in, "broken", "x.png"), "garbage")

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 1}, nil)
	_, err := runner.Run(context.Background(), in, out, []string{"png"}, true)

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Expected *BatchError, got %v", err)
	}
	if exists(filepath.Join(out, "broken")) {
		t.Error("Output directory created for a file that failed to decode")
	}
}

func TestSharedSidecarName(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 20, 10)
	writeImage(t, filepath.Join(in, "x.bmp"), 20, 10)

	for i := 0; i < 20; i++ {
		out := t.TempDir()
		runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 4}, nil)
		if _, err := runner.Run(context.Background(), in, out, []string{"png", "bmp"}, true); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}

		got, err := detection.ReadSidecar(filepath.Join(out, "x.json"))
		if err != nil {
			t.Fatalf("Run %d: x.json unreadable: %v", i, err)
		}
		if !reflect.DeepEqual(got, []detection.Region{face}) {
			t.Fatalf("Run %d: x.json got %+v", i, got)
		}

		entries, err := os.ReadDir(out)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 3 {
			t.Errorf("Run %d: expected x.png, x.bmp and x.json, found %d entries", i, len(entries))
		}
	}
}

func TestNoSidecarWhenDisabled(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 20, 10)

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 1}, nil)
	if _, err := runner.Run(context.Background(), in, out, []string{"png"}, false); err != nil {
		t.Fatal(err)
	}
	if exists(filepath.Join(out, "x.json")) {
		t.Error("Sidecar written with metadata disabled")
	}
}

func TestRunTwice(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "deep", "nested", "x.png"), 10, 10)

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 1}, nil)
	for i := 0; i < 2; i++ {
		if _, err := runner.Run(context.Background(), in, out, []string{"png"}, true); err != nil {
			t.Fatalf("Run %d failed: %v", i+1, err)
		}
	}
}

func TestOutputIsFile(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 10, 10)
	out := filepath.Join(t.TempDir(), "taken")
	writeFile(t, out, "not a dir")

	d := &widthDetector{width: 10, found: face}
	runner := NewRunner(newPipeline(t, d), Options{Workers: 1}, nil)
	_, err := runner.Run(context.Background(), in, out, []string{"png"}, false)
	if !errors.Is(err, ErrOutputNotDir) {
		t.Fatalf("Expected ErrOutputNotDir, got %v", err)
	}
	if d.calls.Load() != 0 {
		t.Error("Detector ran despite bad output path")
	}
}

func TestMismatchBeforeWork(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 10, 10)
	out := filepath.Join(t.TempDir(), "out")

	fill, _ := obfuscation.NewObfuscator("fill", obfuscation.Params{})
	d := &widthDetector{width: 10, found: face}
	p := anonymizer.New(fill, map[string]detection.Detector{"face": d}, map[string]float64{"plate": 0.5})

	_, err := NewRunner(p, Options{Workers: 1}, nil).Run(context.Background(), in, out, []string{"png"}, false)
	if !errors.Is(err, anonymizer.ErrConfigMismatch) {
		t.Fatalf("Expected ErrConfigMismatch, got %v", err)
	}
	if exists(out) {
		t.Error("Output root created despite configuration error")
	}
	if d.calls.Load() != 0 {
		t.Error("Detector ran despite configuration error")
	}
}

func TestContinueOnError(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(in, "a_broken.png"), "garbage")
	writeImage(t, filepath.Join(in, "b_good.png"), 10, 10)

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 1}, nil)
	summary, err := runner.Run(context.Background(), in, out, []string{"png"}, false)

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Expected *BatchError, got %v", err)
	}
	if len(batchErr.Failed) != 1 || batchErr.Failed[0].Path != "a_broken.png" || batchErr.Failed[0].Stage != StageDecode {
		t.Errorf("Unexpected failures: %v", batchErr)
	}
	if summary.Processed != 1 || len(summary.Failed) != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if !exists(filepath.Join(out, "b_good.png")) {
		t.Error("Good file not processed after a failure")
	}
}

func TestFailFast(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(in, "a_broken.png"), "garbage")
	writeImage(t, filepath.Join(in, "b_good.png"), 10, 10)

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 1, FailFast: true}, nil)
	_, err := runner.Run(context.Background(), in, out, []string{"png"}, false)

	var fileErr *FileError
	if !errors.As(err, &fileErr) {
		t.Fatalf("Expected *FileError, got %v", err)
	}
	if fileErr.Path != "a_broken.png" || fileErr.Stage != StageDecode {
		t.Errorf("Unexpected error: %v", fileErr)
	}
	if exists(filepath.Join(out, "b_good.png")) {
		t.Error("Batch continued after the first failure")
	}
}

func TestInferenceFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 10, 10)

	boom := errors.New("model error")
	runner := NewRunner(newPipeline(t, &widthDetector{err: boom}), Options{Workers: 1}, nil)
	_, err := runner.Run(context.Background(), in, out, []string{"png"}, true)

	var fileErr *FileError
	if !errors.As(err, &fileErr) || fileErr.Stage != StageInference {
		t.Fatalf("Expected inference FileError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("Detector error not wrapped")
	}
	if exists(filepath.Join(out, "x.png")) || exists(filepath.Join(out, "x.json")) {
		t.Error("Output written for a failed file")
	}
}

func TestEncodeFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 10, 10)
	// A directory where the output image should go.
	if err := os.MkdirAll(filepath.Join(out, "x.png"), 0755); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(newPipeline(t, &widthDetector{width: 20, found: face}), Options{Workers: 1}, nil)
	_, err := runner.Run(context.Background(), in, out, []string{"png"}, false)

	var fileErr *FileError
	if !errors.As(err, &fileErr) || fileErr.Stage != StageEncode {
		t.Fatalf("Expected encode FileError, got %v", err)
	}
}

func TestCancelled(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 10, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &widthDetector{width: 10, found: face}
	runner := NewRunner(newPipeline(t, d), Options{Workers: 1}, nil)
	if _, err := runner.Run(ctx, in, out, []string{"png"}, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if exists(filepath.Join(out, "x.png")) || d.calls.Load() != 0 {
		t.Error("File processed after cancellation")
	}
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "sub/c.jpg", "sub/d.JPG", "e.txt", "noext", "sub/deeper/f.png"} {
		writeFile(t, filepath.Join(root, name), "x")
	}

	got, err := Collect(root, []string{"jpg", ".png"})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	want := []string{"a.png", "b.jpg", filepath.Join("sub", "c.jpg"), filepath.Join("sub", "deeper", "f.png")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Collect() = %v, want %v", got, want)
	}

	if _, err := Collect(filepath.Join(root, "b.jpg"), []string{"jpg"}); !errors.Is(err, ErrInputNotDir) {
		t.Errorf("Expected ErrInputNotDir, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		rel       string
		page      int
		multiPage bool
		want      string
	}{
		{filepath.Join("a", "b", "c.jpg"), 0, false, filepath.Join("out", "a", "b", "c.jpg")},
		{filepath.Join("a", "doc.pdf"), 0, true, filepath.Join("out", "a", "doc_p0001.png")},
		{"doc.pdf", 11, true, filepath.Join("out", "doc_p0012.png")},
	}
	for _, tt := range tests {
		if got := outputPath("out", tt.rel, tt.page, tt.multiPage); got != tt.want {
			t.Errorf("outputPath(%s, %d) = %s, want %s", tt.rel, tt.page, got, tt.want)
		}
	}

	if got := sidecarPath(filepath.Join("out", "a", "c.jpg"), ".json"); !strings.HasSuffix(got, filepath.Join("a", "c.json")) {
		t.Errorf("sidecarPath = %s", got)
	}
}
