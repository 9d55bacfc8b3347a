package chatcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/cliui"
)

// replyPrinter writes the part of a streaming reply not printed yet. Only
// the local placeholder is followed; once the backend's copy replaces it the
// printer has nothing left to say.
type replyPrinter struct {
	w       io.Writer
	index   int
	printed string
}

func (p *replyPrinter) show(c chat.Chat) {
	if p.index < 0 || p.index >= len(c.Messages) {
		return
	}

	m := c.Messages[p.index]
	if !m.IsPlaceholder() {
		return
	}

	content := m.Content
	if strings.HasPrefix(content, p.printed) {
		fmt.Fprint(p.w, content[len(p.printed):])
	} else {
		// The reply was reset for a retry.
		fmt.Fprintf(p.w, "\n%s\n", cliui.DimStyle.Render("(retrying)"))
		fmt.Fprint(p.w, content)
	}
	p.printed = content
}
