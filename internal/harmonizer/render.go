package harmonizer

import (
	"strings"

	"github.com/ThomasAlban/figured-bass/internal/music"
)

// Render 按高音、中音、次中音、低音的顺序逐行输出各声部，两个字符的音名多补一个空格以对齐
func Render(r *Realisation) string {
	var sb strings.Builder
	voices := []func(Chord) music.Pitch{
		func(c Chord) music.Pitch { return c.S },
		func(c Chord) music.Pitch { return c.A },
		func(c Chord) music.Pitch { return c.T },
		func(c Chord) music.Pitch { return c.B },
	}

	for _, voice := range voices {
		for _, chord := range r.Chords {
			note := voice(chord).String()
			sb.WriteString(note)
			sb.WriteString("   ")
			if len(note) == 2 {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
