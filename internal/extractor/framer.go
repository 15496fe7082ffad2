package extractor

import (
	"bytes"
	"strings"
)

// Frame is the byte range [Start, End) of one complete record block
type Frame struct {
	Start int
	End   int
}

// FindFrames locates complete <name>...</name> blocks in buf, in order. The
// element may carry any namespace prefix. A block whose closing tag has not
// arrived yet ends the scan so a partial tail is never returned.
func FindFrames(buf []byte, name string) []Frame {
	var frames []Frame
	pos := 0
	for pos < len(buf) {
		start, openEnd, ok := nextOpenTag(buf, pos, name)
		if !ok {
			break
		}
		end, ok := nextCloseTag(buf, openEnd, name)
		if !ok {
			break
		}
		frames = append(frames, Frame{Start: start, End: end})
		pos = end
	}
	return frames
}

// nextOpenTag finds the next start tag with the given local name at or after
// pos, returning its offset and the offset just past its closing '>'.
func nextOpenTag(buf []byte, pos int, name string) (int, int, bool) {
	for pos < len(buf) {
		i := bytes.IndexByte(buf[pos:], '<')
		if i < 0 {
			return 0, 0, false
		}
		i += pos

		qname, next := readName(buf, i+1)
		if localName(qname) == name && next < len(buf) {
			gt := bytes.IndexByte(buf[next:], '>')
			if gt < 0 {
				return 0, 0, false
			}
			gt += next
			// <name/> carries no content
			if buf[gt-1] != '/' {
				return i, gt + 1, true
			}
		}
		pos = i + 1
	}
	return 0, 0, false
}

// nextCloseTag finds the end tag with the given local name at or after pos and
// returns the offset just past it.
func nextCloseTag(buf []byte, pos int, name string) (int, bool) {
	for pos < len(buf) {
		i := bytes.Index(buf[pos:], []byte("</"))
		if i < 0 {
			return 0, false
		}
		i += pos

		qname, next := readName(buf, i+2)
		if localName(qname) == name {
			gt := bytes.IndexByte(buf[next:], '>')
			if gt < 0 {
				return 0, false
			}
			return next + gt + 1, true
		}
		pos = i + 2
	}
	return 0, false
}

func readName(buf []byte, pos int) (string, int) {
	end := pos
	for end < len(buf) {
		switch buf[end] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return string(buf[pos:end]), end
		}
		end++
	}
	return string(buf[pos:end]), end
}

func localName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}
