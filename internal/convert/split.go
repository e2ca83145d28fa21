package convert

import (
	"fmt"
	"strings"
)

// File delimiters the conversion worker must use in its output. Everything
// between a FILE marker and the next END FILE marker is the file body,
// verbatim.
const (
	fileMarkerPrefix = "---FILE: "
	fileMarkerSuffix = "---"
	endFileMarker    = "---END FILE---"
)

// OutputFile is one file extracted from conversion worker output.
type OutputFile struct {
	Name string
	Body string
}

// SplitFiles extracts delimited files from raw worker output. Content
// outside any FILE block is ignored (models narrate). A name that appears
// twice keeps the last body and is reported in duplicates. Empty bodies
// are legitimate and preserved. An unterminated FILE block takes
// everything to the end of output, with a warning.
func SplitFiles(output string) (files []OutputFile, duplicates []string, warnings []string) {
	seen := make(map[string]int) // name -> index in files

	lines := strings.Split(output, "\n")
	var (
		current string
		body    []string
		inFile  bool
	)

	flush := func() {
		content := strings.Join(body, "\n")
		if i, dup := seen[current]; dup {
			duplicates = append(duplicates, current)
			files[i].Body = content
		} else {
			seen[current] = len(files)
			files = append(files, OutputFile{Name: current, Body: content})
		}
		current, body, inFile = "", nil, false
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, fileMarkerPrefix) && strings.HasSuffix(trimmed, fileMarkerSuffix):
			if inFile {
				warnings = append(warnings, fmt.Sprintf("file %q not terminated before next file marker", current))
				flush()
			}
			name := strings.TrimSuffix(strings.TrimPrefix(trimmed, fileMarkerPrefix), fileMarkerSuffix)
			current = strings.TrimSpace(name)
			body = []string{}
			inFile = true
			if current == "" {
				warnings = append(warnings, "file marker with empty name, skipping block")
				inFile = false
			}
		case trimmed == endFileMarker:
			if inFile {
				flush()
			}
			// A stray END FILE outside a block is narration; ignore it.
		default:
			if inFile {
				body = append(body, line)
			}
		}
	}

	if inFile {
		warnings = append(warnings, fmt.Sprintf("file %q not terminated, taking content to end of output", current))
		flush()
	}

	return files, duplicates, warnings
}
