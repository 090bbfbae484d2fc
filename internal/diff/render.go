package diff

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/textdiff"
)

// RenderText writes a line-oriented rendering of d:
//
//	--- Page
//	@@ content
//	= unchanged text
//	- removed text
//	+ added text
//
// Multi-line runs get one prefixed line per line. A nil diff renders as
// "(no differences)".
func RenderText(w io.Writer, d *RecordDiff) error {
	if d == nil {
		_, err := io.WriteString(w, "(no differences)\n")
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n", d.Type)
	for _, f := range d.Fields {
		fmt.Fprintf(&b, "@@ %s\n", f.Name)
		renderResult(&b, f.Result, "")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderResult(b *strings.Builder, r Result, label string) {
	switch res := r.(type) {
	case Segments:
		for _, op := range res {
			switch op.Type {
			case textdiff.Equal:
				prefixLines(b, "= ", op.A)
			case textdiff.Delete:
				prefixLines(b, "- ", op.A)
			case textdiff.Insert:
				prefixLines(b, "+ ", op.B)
			case textdiff.Replace:
				prefixLines(b, "- ", op.A)
				prefixLines(b, "+ ", op.B)
			}
		}
	case Change:
		prefixLines(b, "- "+label, ir.Text(res.Deleted))
		prefixLines(b, "+ "+label, ir.Text(res.Inserted))
	case FileChange:
		renderResult(b, res.Name, "name: ")
		renderResult(b, res.URL, "url: ")
	}
}

func prefixLines(b *strings.Builder, prefix, text string) {
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}
