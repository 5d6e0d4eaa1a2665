package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

const admission = `ADMISSION NOTE

Patient admitted on 2024-03-02.

CHIEF COMPLAINT:
Patient presents with chest pain.

VITAL SIGNS:
BP 128/84, HR 88, RR 16, Temp 98.6F, O2 Sat 97%

PLAN:
Chest imaging. Continue monitoring and reassess as needed.`

func TestIsHeader(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"CHIEF COMPLAINT:", true},
		{"  CLAIM STATUS:  ", true},
		{"PROCEDURE NOTE - 2024-01-02", false},
		{"Vital signs: BP 120/80", false},
		{"Claim ID:", false},
		{"12:", false},
		{":", false},
	}
	for _, tt := range tests {
		if got := IsHeader(tt.line); got != tt.want {
			t.Errorf("IsHeader(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestSplit_SingleChunk(t *testing.T) {
	got := Split("NOTE100000", admission, DefaultMaxChars)
	want := []Chunk{{
		ID:     "NOTE100000#0",
		NoteID: "NOTE100000",
		Index:  0,
		Text: "ADMISSION NOTE\n\nPatient admitted on 2024-03-02.\n\nCHIEF COMPLAINT:\nPatient presents with chest pain." +
			"\n\nVITAL SIGNS:\nBP 128/84, HR 88, RR 16, Temp 98.6F, O2 Sat 97%" +
			"\n\nPLAN:\nChest imaging. Continue monitoring and reassess as needed.",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Split (-want +got):\n%s", diff)
	}
}

func TestSplit_PacksSections(t *testing.T) {
	got := Split("NOTE100001", admission, 90)
	if len(got) < 3 {
		t.Fatalf("expected several chunks, got %d", len(got))
	}
	for i, c := range got {
		if c.ID != ID("NOTE100001", i) || c.Index != i {
			t.Errorf("chunk %d has id %s index %d", i, c.ID, c.Index)
		}
		if len(c.Text) > 90 {
			t.Errorf("chunk %d exceeds limit: %d chars", i, len(c.Text))
		}
		if !strings.HasPrefix(c.Text, "ADMISSION NOTE\n\n") {
			t.Errorf("chunk %d lacks title prefix: %q", i, c.Text)
		}
	}
	// a header stays with its first content line
	for _, c := range got {
		if strings.HasSuffix(c.Text, "COMPLAINT:") || strings.HasSuffix(c.Text, "PLAN:") {
			t.Errorf("orphaned header in %q", c.Text)
		}
	}
}

func TestSplit_OversizeSection(t *testing.T) {
	body := strings.Repeat("documentation supports medical necessity ", 40)
	text := "DISCHARGE SUMMARY\n\nHOSPITAL COURSE:\n" + body
	got := Split("NOTE7", text, 200)
	if len(got) < 2 {
		t.Fatalf("expected the section to be split, got %d chunks", len(got))
	}
	var words int
	for _, c := range got {
		if len(c.Text) > 200 {
			t.Errorf("chunk too long: %d", len(c.Text))
		}
		rest := strings.TrimPrefix(c.Text, "DISCHARGE SUMMARY\n\n")
		for _, w := range strings.Fields(rest) {
			switch w {
			case "documentation", "supports", "medical", "necessity":
				words++
			case "HOSPITAL", "COURSE:":
			default:
				t.Fatalf("word split mid-token: %q", w)
			}
		}
	}
	if words != 160 {
		t.Errorf("expected all 160 words preserved, got %d", words)
	}
}

func TestSplit_Edges(t *testing.T) {
	if got := Split("NOTE1", "  \n\n ", 0); got != nil {
		t.Errorf("expected no chunks for blank text, got %v", got)
	}
	got := Split("NOTE2", "PROGRESS NOTE - 2024-01-01", 0)
	if len(got) != 1 || got[0].Text != "PROGRESS NOTE - 2024-01-01" {
		t.Errorf("title-only note: %+v", got)
	}
	a := Split("NOTE3", admission, 120)
	b := Split("NOTE3", admission, 120)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Error("chunking is not deterministic")
	}
}

func TestSplitWords_LongToken(t *testing.T) {
	got := splitWords("ab "+strings.Repeat("x", 12)+" cd", 5)
	want := []string{"ab", "xxxxx", "xxxxx", "xx cd"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("splitWords (-want +got):\n%s", diff)
	}
}

func TestSplit_MultiByteTitle(t *testing.T) {
	title := "x" + strings.Repeat("é", 150)
	got := Split("NOTE4", title+"\n\nPLAN:\n"+strings.Repeat("révision ", 40), 200)
	if len(got) < 2 {
		t.Fatalf("expected the body to spill over several chunks, got %d", len(got))
	}
	for _, c := range got {
		if !utf8.ValidString(c.Text) {
			t.Errorf("chunk %s is not valid UTF-8: %q", c.ID, c.Text)
		}
		if len(c.Text) > 200 {
			t.Errorf("chunk %s exceeds the size bound: %d bytes", c.ID, len(c.Text))
		}
	}
	head := strings.SplitN(got[0].Text, "\n", 2)[0]
	if want := "x" + strings.Repeat("é", 24); head != want {
		t.Errorf("title = %q, want %q", head, want)
	}
}

func TestSplitWords_MultiByteToken(t *testing.T) {
	got := splitWords("ab "+strings.Repeat("é", 6)+" cd", 5)
	want := []string{"ab", "éé", "éé", "éé", "cd"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("splitWords (-want +got):\n%s", diff)
	}
	if got := cut("é", 1); got != "é" {
		t.Errorf("cut must keep at least one rune, got %q", got)
	}
}
