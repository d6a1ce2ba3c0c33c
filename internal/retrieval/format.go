package retrieval

import (
	"fmt"
	"strings"
)

// FormatContext renders retrieved nodes as the evidence block handed to the
// chat model. Each node carries its source file name and document ID ahead
// of the text so generated citations stay traceable.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "### File Name: %s\n", r.Node.Metadata.FileName)
		fmt.Fprintf(&b, "### Document ID: %d\n", r.Node.Metadata.DocumentID)
		fmt.Fprintf(&b, "### Content:\n%s", r.Node.Content)
	}
	return b.String()
}
