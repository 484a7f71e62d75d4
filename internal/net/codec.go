package net

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Server-sent event frames, one per stream message:
//
//	id: <n>\r\n
//	event: <name>\r\n
//	data: <payload>\r\n
//	\r\n
//
// Lines starting with ':' are comments and carry keepalives.

// ErrFrameTooLarge is returned by ReadEvent for a frame above maxFrameSize.
var ErrFrameTooLarge = errors.New("net: event frame too large")

const maxFrameSize = 16 << 20

// Frame is one decoded server-sent event.
type Frame struct {
	ID    uint64
	Event string
	Data  []byte
}

// AppendEvent appends an encoded frame to dst. data must not contain line
// breaks.
func AppendEvent(dst []byte, id uint64, event string, data []byte) []byte {
	dst = append(dst, "id: "...)
	dst = strconv.AppendUint(dst, id, 10)
	dst = append(dst, "\r\nevent: "...)
	dst = append(dst, event...)
	dst = append(dst, "\r\ndata: "...)
	dst = append(dst, data...)
	return append(dst, "\r\n\r\n"...)
}

// WriteEvent writes one frame to w.
func WriteEvent(w io.Writer, id uint64, event string, data []byte) error {
	buf := AppendEvent(make([]byte, 0, len(data)+64), id, event, data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write event %d: %w", id, err)
	}
	return nil
}

// WriteComment writes a comment line, ignored by event stream readers.
func WriteComment(w io.Writer, text string) error {
	if _, err := io.WriteString(w, ": "+text+"\r\n\r\n"); err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	return nil
}

// ReadEvent reads the next frame from r, skipping comment-only blocks.
// Multiple data lines are joined with '\n'.
func ReadEvent(r *bufio.Reader) (Frame, error) {
	var (
		f     Frame
		seen  bool
		size  int
		datas [][]byte
	)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && (len(line) > 0 || seen) {
				err = io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		size += len(line)
		if size > maxFrameSize {
			return Frame{}, ErrFrameTooLarge
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if !seen {
				continue
			}
			f.Data = bytes.Join(datas, []byte{'\n'})
			return f, nil
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte{':'})
		value = bytes.TrimPrefix(value, []byte{' '})
		switch string(field) {
		case "id":
			id, err := strconv.ParseUint(string(value), 10, 64)
			if err != nil {
				return Frame{}, fmt.Errorf("event id %q: %w", value, err)
			}
			f.ID = id
		case "event":
			f.Event = string(value)
		case "data":
			datas = append(datas, value)
		default:
			continue
		}
		seen = true
	}
}
