package plan

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

var (
	gateRe = regexp.MustCompile("^[-*]\\s*([^:(]+?)\\s*(?::[^(]*)?\\(command:\\s*`([^`]+)`\\s*\\)")

	taskRe = regexp.MustCompile(`^[-*]\s*\[([ xX])\]\s*(.+)$`)

	dependsRe = regexp.MustCompile(`(?i)^(?:\*\*)?depends\s+on(?:\*\*)?\s*:\s*(.+)$`)

	notesOutRe = regexp.MustCompile("(?i)write\\s+notes\\s+to\\s*:\\s*`?([^`\\s]+)`?")
	notesInRe  = regexp.MustCompile("(?i)read\\s+notes\\s+from\\s*:\\s*`?([^`\\s]+)`?")

	phaseHeadingRe = regexp.MustCompile(`^#\s+(?:Phase\s+[A-Za-z0-9_.-]+\s*[:-]\s*)?(.+)$`)
)

// ParsePhase reads and parses a phase markdown file, filling in the detail
// the master table does not carry: gates, tasks, dependencies, and notes
// paths. The id comes from the master plan row that referenced this file.
//
// Sections recognized:
//
//	## Gates   - bullets of the form "- name: desc (command: `cmd`)"
//	## Tasks   - markdown checkboxes
//
// "Depends On:", "Write notes to:", and "Read notes from:" are matched
// anywhere in the document. Unrecognized content is ignored, never an
// error: structural complaints belong to the audit engine.
func ParsePhase(path, id string) (*Phase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ph := &Phase{
		ID:     id,
		Path:   path,
		Status: StatusPending,
	}

	section := ""
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if ph.Title == "" && strings.HasPrefix(line, "# ") {
			if m := phaseHeadingRe.FindStringSubmatch(line); m != nil {
				ph.Title = strings.TrimSpace(m[1])
			}
			continue
		}

		if strings.HasPrefix(line, "## ") {
			section = strings.ToLower(strings.TrimSpace(line[3:]))
			continue
		}

		if m := dependsRe.FindStringSubmatch(line); m != nil {
			for _, dep := range strings.Split(m[1], ",") {
				dep = strings.TrimSpace(dep)
				if dep != "" && !strings.EqualFold(dep, "none") {
					ph.DependsOn = append(ph.DependsOn, dep)
				}
			}
			continue
		}
		if m := notesOutRe.FindStringSubmatch(line); m != nil {
			ph.NotesOutput = m[1]
			continue
		}
		if m := notesInRe.FindStringSubmatch(line); m != nil {
			ph.NotesInput = m[1]
			continue
		}

		switch section {
		case "gates":
			if m := gateRe.FindStringSubmatch(line); m != nil {
				ph.Gates = append(ph.Gates, Gate{
					Name:    strings.TrimSpace(m[1]),
					Command: strings.TrimSpace(m[2]),
				})
			}
		case "tasks":
			if m := taskRe.FindStringSubmatch(line); m != nil {
				ph.Tasks = append(ph.Tasks, Task{
					Description: strings.TrimSpace(m[2]),
					Completed:   m[1] != " ",
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ph, nil
}
