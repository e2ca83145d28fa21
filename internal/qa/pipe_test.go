package qa

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/baton/internal/logging"
)

// recordedAsker is a terminal stand-in that records questions and returns
// a fixed answer.
type recordedAsker struct {
	asked []Question
}

func (r *recordedAsker) Ask(ctx context.Context, q Question) (Answer, error) {
	r.asked = append(r.asked, q)
	return Answer{Type: "answer", Gap: q.Gap, Text: "from fallback"}, nil
}

func newPipe(in io.Reader, out io.Writer, fallback Asker) *pipeAsker {
	return &pipeAsker{in: in, out: out, fallback: fallback, logger: logging.Nop()}
}

func TestPipeAskRoundTrip(t *testing.T) {
	answer := `{"type":"answer","gap_type":"risk","answer":"use docker"}` + "\n"
	var out strings.Builder
	p := newPipe(strings.NewReader(answer), &out, &recordedAsker{})

	q := Question{Gap: GapRisk, Text: "Sandbox or not?", Options: []string{"sandbox", "yolo"}, Context: "no sandbox configured"}
	ans, err := p.Ask(context.Background(), q)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "use docker" || ans.Skipped() {
		t.Errorf("answer = %+v", ans)
	}

	// The question must be exactly one line of JSON carrying the protocol's
	// field names and the type discriminator.
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("question written as %d lines, want 1", len(lines))
	}
	var wire map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &wire); err != nil {
		t.Fatalf("question line is not valid JSON: %v", err)
	}
	if wire["type"] != "question" {
		t.Errorf("type = %v, want question", wire["type"])
	}
	if wire["gap_type"] != "risk" {
		t.Errorf("gap_type = %v, want risk", wire["gap_type"])
	}
	if wire["question"] != "Sandbox or not?" {
		t.Errorf("question = %v", wire["question"])
	}
	if wire["context"] != "no sandbox configured" {
		t.Errorf("context = %v", wire["context"])
	}
	if opts, ok := wire["options"].([]any); !ok || len(opts) != 2 {
		t.Errorf("options = %v, want both options", wire["options"])
	}
}

func TestPipeSkipAnswer(t *testing.T) {
	answer := `{"type":"answer","gap_type":"scope","answer":"skip"}` + "\n"
	var out strings.Builder
	p := newPipe(strings.NewReader(answer), &out, &recordedAsker{})

	ans, err := p.Ask(context.Background(), Question{Gap: GapScope, Text: "Include cleanup?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Skipped() {
		t.Errorf("answer %+v should report skipped", ans)
	}
}

func TestPipeMalformedAnswerFallsBack(t *testing.T) {
	fallback := &recordedAsker{}
	var out strings.Builder
	p := newPipe(strings.NewReader("this is not json\n"), &out, fallback)

	q := Question{Gap: GapScope, Text: "Include cleanup?"}
	ans, err := p.Ask(context.Background(), q)
	if err != nil {
		t.Fatalf("Ask should fall back, not fail: %v", err)
	}
	if ans.Text != "from fallback" {
		t.Errorf("answer = %q, want the fallback's", ans.Text)
	}
	if len(fallback.asked) != 1 || fallback.asked[0].Gap != GapScope {
		t.Errorf("fallback asked = %+v", fallback.asked)
	}
}

func TestPipeMismatchedGapTypeIsAccepted(t *testing.T) {
	fallback := &recordedAsker{}
	var out strings.Builder
	p := newPipe(strings.NewReader(`{"type":"answer","gap_type":"other","answer":"x"}`+"\n"), &out, fallback)

	// The stream is request-response, so a gap-type mismatch is logged and
	// the answer accepted rather than discarded.
	ans, err := p.Ask(context.Background(), Question{Gap: GapRisk, Text: "?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "x" {
		t.Errorf("answer = %q, want the mismatched answer accepted", ans.Text)
	}
	if len(fallback.asked) != 0 {
		t.Error("gap-type mismatch should not trigger the fallback")
	}
}

func TestPipeEOFFallsBack(t *testing.T) {
	fallback := &recordedAsker{}
	var out strings.Builder
	p := newPipe(strings.NewReader(""), &out, fallback)

	ans, err := p.Ask(context.Background(), Question{Gap: GapScope})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "from fallback" {
		t.Errorf("answer = %q", ans.Text)
	}
}

func TestPipeContextCancellation(t *testing.T) {
	fallback := &recordedAsker{}
	var out strings.Builder
	// A reader that never produces anything.
	blocked, _ := io.Pipe()
	p := newPipe(bufio.NewReader(blocked), &out, fallback)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := p.Ask(ctx, Question{Gap: GapScope}); err == nil {
		t.Fatal("expected context error when nothing answers")
	}
}

func TestTerminalAskerReadsAnswer(t *testing.T) {
	// A plain reader is not an *os.File, so the TTY check is skipped and
	// the answer is read directly.
	ta := &terminalAsker{in: strings.NewReader("an answer\n"), out: io.Discard, logger: logging.Nop()}

	ans, err := ta.Ask(context.Background(), Question{Gap: GapScope, Text: "?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "an answer" || ans.Gap != GapScope {
		t.Errorf("answer = %+v", ans)
	}
}

func TestTerminalAskerSkip(t *testing.T) {
	ta := &terminalAsker{in: strings.NewReader("SKIP\n"), out: io.Discard, logger: logging.Nop()}

	ans, err := ta.Ask(context.Background(), Question{Gap: GapScope, Text: "?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Skipped() {
		t.Errorf("answer %+v should report skipped", ans)
	}
}

func TestNormalizeGap(t *testing.T) {
	tests := []struct {
		in   string
		want GapType
	}{
		{"missing_gates", GapMissingGates},
		{"dependency", GapDependency},
		{"scope", GapScope},
		{"risk", GapRisk},
		{"other", GapOther},
		{"telemetry_gap_v9", GapOther},
		{"", GapOther},
	}
	for _, tt := range tests {
		if got := NormalizeGap(tt.in); got != tt.want {
			t.Errorf("NormalizeGap(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
