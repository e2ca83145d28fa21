package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// masterFrontMatter is the optional YAML front matter block at the top of a
// master plan. Issue lists accept either YAML sequences or a single
// comma-separated string, matching what plan authors actually write.
type masterFrontMatter struct {
	GitHubIssues yaml.Node `yaml:"github_issues"`
	JiraIssues   yaml.Node `yaml:"jira_issues"`
}

var (
	// Matches markdown table rows in the "## Phases" section:
	// | 1 | [Title](phase-1.md) | ... |
	phaseRowRe = regexp.MustCompile(`^\|\s*([A-Za-z0-9_.-]+)\s*\|\s*\[([^\]]+)\]\(([^)]+)\)\s*\|`)

	headingRe = regexp.MustCompile(`^#\s+(.+)$`)
)

// ParseMaster reads and parses a master plan markdown file. The returned
// Plan's phases carry only the metadata present in the master table; use
// ParsePhase for the per-phase detail. Phase paths are resolved relative
// to the master plan's directory.
//
// The error is an I/O error when the file cannot be read, or a format
// error when the document cannot be understood. Callers that need issue
// aggregation instead of errors (the audit engine) wrap these themselves.
func ParseMaster(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := string(data)
	p := &Plan{
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}

	body, fm, err := splitFrontMatter(content)
	if err != nil {
		return nil, fmt.Errorf("invalid front matter: %w", err)
	}
	if fm != nil {
		p.Issues = append(p.Issues, issueRefs(ProviderGitHub, &fm.GitHubIssues)...)
		p.Issues = append(p.Issues, issueRefs(ProviderJira, &fm.JiraIssues)...)
	}

	inPhases := false
	baseDir := filepath.Dir(path)
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)

		if p.Title == "" {
			if m := headingRe.FindStringSubmatch(trimmed); m != nil {
				p.Title = strings.TrimSpace(m[1])
				continue
			}
		}

		if strings.HasPrefix(trimmed, "## ") {
			inPhases = strings.EqualFold(strings.TrimSpace(trimmed[3:]), "phases")
			continue
		}
		if !inPhases {
			continue
		}

		m := phaseRowRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		p.Phases = append(p.Phases, &Phase{
			ID:     m[1],
			Title:  strings.TrimSpace(m[2]),
			Path:   filepath.Join(baseDir, m[3]),
			Status: StatusPending,
		})
	}

	if p.Title == "" {
		p.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return p, nil
}

// splitFrontMatter separates an optional leading "---" YAML block from the
// markdown body. Returns the body unchanged when no front matter exists.
func splitFrontMatter(content string) (string, *masterFrontMatter, error) {
	if !strings.HasPrefix(content, "---\n") {
		return content, nil, nil
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content, nil, nil
	}

	var fm masterFrontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return "", nil, err
	}

	body := rest[end+4:]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	}
	return body, &fm, nil
}

// issueRefs normalizes a front matter issue node into typed references.
// Accepts a sequence ([10, 11] or [PROJ-1, PROJ-2]) or a scalar string
// ("#10, #11" / "PROJ-1, PROJ-2").
func issueRefs(provider IssueProvider, node *yaml.Node) []IssueRef {
	var raw []string

	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			raw = append(raw, item.Value)
		}
	case yaml.ScalarNode:
		if node.Value == "" {
			return nil
		}
		for _, part := range strings.Split(node.Value, ",") {
			raw = append(raw, strings.TrimSpace(part))
		}
	default:
		return nil
	}

	refs := make([]IssueRef, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimPrefix(strings.TrimSpace(id), "#")
		if id == "" {
			continue
		}
		if provider == ProviderGitHub {
			// GitHub references must be numeric; drop anything else rather
			// than recording a reference that can never match.
			if _, err := strconv.Atoi(id); err != nil {
				continue
			}
		}
		refs = append(refs, IssueRef{Provider: provider, ID: id})
	}
	return refs
}
