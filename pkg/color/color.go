package color

import (
	"fmt"
	"hash/fnv"
	"io"

	"github.com/fatih/color"
)

// memberColors is the palette members are hashed onto.
var memberColors = []color.Attribute{
	color.FgHiRed,
	color.FgHiGreen,
	color.FgHiYellow,
	color.FgHiBlue,
	color.FgHiMagenta,
	color.FgHiCyan,
	color.FgRed,
	color.FgGreen,
	color.FgYellow,
	color.FgBlue,
	color.FgMagenta,
	color.FgCyan,
}

// ForMember returns the same color for a member id on every call, so one
// person reads the same across tree and list output. NO_COLOR and non-tty
// output are honored by fatih/color.
func ForMember(memberID string) *color.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(memberID))
	return color.New(memberColors[h.Sum32()%uint32(len(memberColors))])
}

// Member renders memberID in its color.
func Member(memberID string) string {
	return ForMember(memberID).Sprint(memberID)
}

var (
	finished = color.New(color.FgGreen)
	deleted  = color.New(color.Faint, color.CrossedOut)
	overdue  = color.New(color.FgRed, color.Bold)
)

// TaskLine is the per-node line of a rendered task tree.
type TaskLine struct {
	Depth      int
	ID         string
	Name       string
	Due        string
	Unfinished []string
	Deleted    bool
	Overdue    bool
}

// FprintTaskLine writes one indented tree line. Finished tasks (no
// unfinished members) are green, deleted ones are struck through.
func FprintTaskLine(w io.Writer, l TaskLine) {
	name := l.Name
	switch {
	case l.Deleted:
		name = deleted.Sprint(name + " (deleted)")
	case len(l.Unfinished) == 0:
		name = finished.Sprint(name)
	}
	due := l.Due
	if l.Overdue && !l.Deleted && len(l.Unfinished) > 0 {
		due = overdue.Sprint(due)
	}
	members := make([]any, 0, len(l.Unfinished))
	for _, m := range l.Unfinished {
		members = append(members, Member(m))
	}
	fmt.Fprintf(w, "%*s%s  %s  due %s  unfinished %v\n", l.Depth*2, "", l.ID, name, due, members)
}
