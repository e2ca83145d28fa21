// Package qa asks the operator clarifying questions when a plan leaves a
// gap the orchestrator cannot resolve on its own. Two transports exist:
// a machine-readable pipe protocol for wrapping tools, and plain terminal
// prompts for humans. The pipe degrades to the terminal on any protocol
// violation rather than stalling a run.
package qa

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Iron-Ham/baton/internal/logging"
)

// ModeEnvVar selects the transport: set to "pipe" for the JSON protocol.
const ModeEnvVar = "BATON_QA_MODE"

// answerTimeout bounds how long the pipe waits for an answer line before
// falling back to the terminal.
const answerTimeout = 60 * time.Second

// SkipAnswer is the literal answer text that declines a question.
const SkipAnswer = "skip"

// GapType is a closed classification of what kind of plan gap a question
// is about. Unknown values normalize to GapOther.
type GapType string

const (
	GapMissingGates GapType = "missing_gates"
	GapDependency   GapType = "dependency"
	GapScope        GapType = "scope"
	GapRisk         GapType = "risk"
	GapOther        GapType = "other"
)

// NormalizeGap maps an arbitrary string onto the closed gap enumeration.
func NormalizeGap(s string) GapType {
	switch GapType(s) {
	case GapMissingGates, GapDependency, GapScope, GapRisk:
		return GapType(s)
	}
	return GapOther
}

// Question is one clarifying question posed to the operator. On the pipe
// it is one line of JSON:
//
//	{"type":"question","gap_type":"scope","question":"...","options":[...],"context":"..."}
//
// The type discriminator is stamped on send; callers fill the rest.
type Question struct {
	Type    string   `json:"type"`
	Gap     GapType  `json:"gap_type"`
	Text    string   `json:"question"`
	Options []string `json:"options,omitempty"`
	Context string   `json:"context,omitempty"`
}

// Answer is the operator's response, keyed to the question by gap type:
//
//	{"type":"answer","gap_type":"scope","answer":"..."}
type Answer struct {
	Type string  `json:"type"`
	Gap  GapType `json:"gap_type"`
	Text string  `json:"answer"`
}

// Skipped reports whether the operator declined the question.
func (a Answer) Skipped() bool {
	return strings.EqualFold(strings.TrimSpace(a.Text), SkipAnswer)
}

// Asker poses questions and returns answers.
type Asker interface {
	Ask(ctx context.Context, q Question) (Answer, error)
}

// New selects the transport: the pipe protocol when BATON_QA_MODE=pipe,
// otherwise terminal prompts. Questions on the pipe are single-line JSON
// on stdout, which is reserved for exactly this purpose.
func New(logger *logging.Logger) Asker {
	log := logger.WithComponent("qa")
	terminal := &terminalAsker{
		in:     os.Stdin,
		out:    os.Stderr,
		logger: log,
	}
	if os.Getenv(ModeEnvVar) == "pipe" {
		return &pipeAsker{
			in:       os.Stdin,
			out:      os.Stdout,
			fallback: terminal,
			logger:   log,
		}
	}
	return terminal
}

// pipeAsker speaks the machine protocol: one JSON question per line on
// out, one JSON answer per line expected on in. Any malformed answer or
// timeout hands the question to the fallback instead of failing the run.
type pipeAsker struct {
	in       io.Reader
	out      io.Writer
	fallback Asker
	logger   *logging.Logger
}

func (p *pipeAsker) Ask(ctx context.Context, q Question) (Answer, error) {
	q.Type = "question"
	line, err := json.Marshal(q)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to encode question: %w", err)
	}
	if _, err := fmt.Fprintf(p.out, "%s\n", line); err != nil {
		return Answer{}, fmt.Errorf("failed to write question: %w", err)
	}

	answerCh := make(chan Answer, 1)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(p.in)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				errCh <- err
				return
			}
			errCh <- io.EOF
			return
		}
		var ans Answer
		if err := json.Unmarshal(scanner.Bytes(), &ans); err != nil {
			errCh <- fmt.Errorf("malformed answer: %w", err)
			return
		}
		answerCh <- ans
	}()

	timer := time.NewTimer(answerTimeout)
	defer timer.Stop()

	select {
	case ans := <-answerCh:
		// A gap-type mismatch is accepted with a warning; the stream is
		// strictly request-response, so the answer can only be for this
		// question.
		if ans.Gap != q.Gap {
			p.logger.Warn("qa answer gap type does not match question",
				"want", string(q.Gap), "got", string(ans.Gap))
		}
		return ans, nil
	case err := <-errCh:
		p.logger.Warn("qa pipe protocol violation, falling back to terminal",
			"gap", string(q.Gap), "error", err)
		return p.fallback.Ask(ctx, q)
	case <-timer.C:
		p.logger.Warn("qa pipe answer timed out, falling back to terminal", "gap", string(q.Gap))
		return p.fallback.Ask(ctx, q)
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	}
}

// terminalAsker prompts a human. The prompt goes to stderr so stdout
// stays clean for the pipe protocol even in mixed setups.
type terminalAsker struct {
	in     io.Reader
	out    io.Writer
	logger *logging.Logger
}

func (t *terminalAsker) Ask(ctx context.Context, q Question) (Answer, error) {
	if f, ok := t.in.(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		// Nobody is there to answer; surface that instead of hanging.
		return Answer{}, fmt.Errorf("question about %s needs an answer but no terminal is attached", q.Gap)
	}

	fmt.Fprintf(t.out, "\n[%s] %s\n", q.Gap, q.Text)
	if q.Context != "" {
		fmt.Fprintf(t.out, "  (%s)\n", q.Context)
	}
	for i, opt := range q.Options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprintf(t.out, "(Enter your answer, or %q to skip this question)\n> ", SkipAnswer)

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		if scanner.Scan() {
			lineCh <- scanner.Text()
			return
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
			return
		}
		errCh <- io.EOF
	}()

	select {
	case line := <-lineCh:
		return Answer{Type: "answer", Gap: q.Gap, Text: strings.TrimSpace(line)}, nil
	case err := <-errCh:
		return Answer{}, fmt.Errorf("failed to read answer: %w", err)
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	}
}
