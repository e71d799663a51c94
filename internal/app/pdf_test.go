package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperifyio/goanswer/internal/orchestrate"
)

func TestWriteAnswerPDF(t *testing.T) {
	out := &orchestrate.Outcome{
		Query:  "what is the speed of light?",
		Answer: "About 299,792 km/s, per https://en.wikipedia.org/wiki/Speed_of_light measurements.\n\nIt is exact by definition.",
		Links: []orchestrate.Link{
			{Title: "Speed of light", URL: "https://en.wikipedia.org/wiki/Speed_of_light"},
			{URL: "https://example.org/untitled"},
		},
	}
	path := filepath.Join(t.TempDir(), "answer.pdf")
	if err := WriteAnswerPDF(out, path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("pdf not written: %v", err)
	}
	head := make([]byte, 5)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.Read(head); err != nil || string(head[:4]) != "%PDF" {
		t.Fatalf("not a pdf: %q err=%v", head, err)
	}
}
