package color

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestForMember_Stable(t *testing.T) {
	assert.Equal(t, ForMember("alice").Sprint("x"), ForMember("alice").Sprint("x"))
}

func TestFprintTaskLine(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	FprintTaskLine(&buf, TaskLine{Depth: 1, ID: "t1", Name: "write", Due: "2026-01-01 09:00", Unfinished: []string{"u1", "u2"}})
	assert.Equal(t, "  t1  write  due 2026-01-01 09:00  unfinished [u1 u2]\n", buf.String())

	buf.Reset()
	FprintTaskLine(&buf, TaskLine{ID: "t2", Name: "old", Due: "-", Deleted: true})
	assert.Equal(t, "t2  old (deleted)  due -  unfinished []\n", buf.String())
}
