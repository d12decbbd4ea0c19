// Package printer renders received messages as lines for the listen command
package printer

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/charmbracelet/lipgloss"
)

// TimeFormat matches the C library's asctime layout, without the newline
const TimeFormat = time.ANSIC

// Options control which messages are printed and how
type Options struct {
	ShowAll    bool // print subscribe and unsubscribe frames too
	Timestamps bool
	ShowSource bool
}

// Printer writes one line per message
type Printer struct {
	out  io.Writer
	opts Options
	now  func() time.Time

	timeStyle   lipgloss.Style
	kindStyles  map[protocol.Kind]lipgloss.Style
	sourceStyle lipgloss.Style
}

// New returns a Printer writing to out. Colour is only emitted when out is
// a terminal.
func New(out io.Writer, opts Options) *Printer {
	r := lipgloss.NewRenderer(out)
	frame := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return &Printer{
		out:  out,
		opts: opts,
		now:  time.Now,

		timeStyle: r.NewStyle().Foreground(lipgloss.Color("244")),
		kindStyles: map[protocol.Kind]lipgloss.Style{
			protocol.KindStandard:    frame.Foreground(lipgloss.Color("252")),
			protocol.KindSubscribe:   frame.Foreground(lipgloss.Color("42")),
			protocol.KindUnsubscribe: frame.Foreground(lipgloss.Color("214")),
		},
		sourceStyle: r.NewStyle().Faint(true),
	}
}

// Print writes msg stamped with the current time if the options select it,
// and reports whether it did.
func (p *Printer) Print(msg protocol.Message, from net.Addr) (bool, error) {
	return p.PrintAt(msg, from, p.now())
}

// PrintAt is Print with an explicit receive time
func (p *Printer) PrintAt(msg protocol.Message, from net.Addr, at time.Time) (bool, error) {
	if msg == nil {
		return false, nil
	}
	if !p.opts.ShowAll && msg.Kind() != protocol.KindStandard {
		return false, nil
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		return false, fmt.Errorf("print %s: %w", msg.Kind(), err)
	}

	var line strings.Builder
	if p.opts.Timestamps {
		line.WriteString(p.timeStyle.Render("[" + at.Format(TimeFormat) + "]"))
		line.WriteByte(' ')
	}
	line.WriteString(renderLines(p.kindStyles[msg.Kind()], string(frame)))
	if p.opts.ShowSource && from != nil {
		line.WriteByte(' ')
		line.WriteString(p.sourceStyle.Render("(" + from.String() + ")"))
	}
	line.WriteByte('\n')

	if _, err := io.WriteString(p.out, line.String()); err != nil {
		return false, err
	}
	return true, nil
}

// renderLines styles each line of s on its own. Render pads a multi-line
// string to its widest line, which would add bytes that were not received.
func renderLines(style lipgloss.Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = style.Render(l)
	}
	return strings.Join(lines, "\n")
}
