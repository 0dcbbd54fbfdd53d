// Package subtitles renders ASS subtitle files for the reframed short,
// sized to the vertical canvas.
package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/vshorts/internal/types"
)

// Word-packing budgets for a 9:16 canvas. Narrower than landscape budgets:
// long lines wrap badly over a vertical crop.
const (
	charBudget = 24
	wordBudget = 5
)

// RenderShortASS renders karaoke-style subtitles for the highlight window,
// with event times shifted to clip-local offsets. Falls back to a single
// static line when the transcript has no usable word timestamps.
func RenderShortASS(tr types.Transcript, start, end time.Duration, meta types.StreamMeta) (string, error) {
	if end <= start {
		return "", fmt.Errorf("empty subtitle window [%s,%s]", start, end)
	}
	w, h := meta.VerticalWidth(), meta.VerticalHeight()
	if w <= 0 || h <= 0 {
		w, h = 1080, 1920
	}

	words := collectWords(tr, start, end)
	if len(words) == 0 {
		text := collectSegmentText(tr, start, end)
		if text == "" {
			return "", fmt.Errorf("no transcript text in window [%s,%s]", start, end)
		}
		return renderPlain(text, end-start, w, h), nil
	}
	return renderKaraoke(packWords(words), w, h), nil
}

type timedWord struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []timedWord
}

func collectWords(tr types.Transcript, start, end time.Duration) []timedWord {
	var out []timedWord
	for _, s := range tr.Segments {
		for _, w := range s.Words {
			ws, we := dur(w.Start), dur(w.End)
			if we <= start || ws >= end {
				continue
			}
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			if ws < start {
				ws = start
			}
			if we > end {
				we = end
			}
			out = append(out, timedWord{Start: ws - start, End: we - start, Text: sanitize(text)})
		}
	}
	return out
}

func collectSegmentText(tr types.Transcript, start, end time.Duration) string {
	var parts []string
	for _, s := range tr.Segments {
		if dur(s.End) <= start || dur(s.Start) >= end {
			continue
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return sanitize(strings.Join(parts, " "))
}

func packWords(words []timedWord) []line {
	var out []line
	cur := line{Start: words[0].Start}
	curLen := 0
	for i, w := range words {
		wl := len([]rune(w.Text))
		next := curLen + wl
		if curLen > 0 {
			next++
		}
		if len(cur.Words) >= wordBudget || next > charBudget {
			if len(cur.Words) > 0 {
				cur.End = cur.Words[len(cur.Words)-1].End
				out = append(out, cur)
			}
			cur = line{Start: w.Start}
			curLen = 0
		}
		cur.Words = append(cur.Words, w)
		if curLen > 0 {
			curLen++
		}
		curLen += wl
		if i == len(words)-1 {
			cur.End = w.End
			out = append(out, cur)
		}
	}
	return out
}

func renderKaraoke(lines []line, w, h int) string {
	var b strings.Builder
	b.WriteString(header(w, h))
	b.WriteString(eventsHeader)
	for _, ln := range lines {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ln.Start))
		b.WriteString(",")
		b.WriteString(assTime(ln.End))
		b.WriteString(",Short,,0,0,0,,")
		for _, w := range ln.Words {
			durCS := int((w.End - w.Start) / (10 * time.Millisecond))
			if durCS < 1 {
				durCS = 1
			}
			fmt.Fprintf(&b, "{\\k%d}%s ", durCS, w.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderPlain(text string, d time.Duration, w, h int) string {
	var b strings.Builder
	b.WriteString(header(w, h))
	b.WriteString(eventsHeader)
	b.WriteString("Dialogue: 0,0:00:00.00,")
	b.WriteString(assTime(d))
	b.WriteString(",Short,,0,0,0,,")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

const eventsHeader = "\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n"

func header(w, h int) string {
	return fmt.Sprintf(strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Short, Inter, 64, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,5,2,2, 60,60,120,1
`), w, h)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
