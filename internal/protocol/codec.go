package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

const DefaultMaxLine = 4 << 20

// ReadLine returns the next newline-terminated message without its terminator.
// A line longer than max bytes is discarded up to its terminator and reported
// as ErrLineTooLong, so the reader stays aligned on the next message. A max of
// zero disables the limit.
func ReadLine(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if max > 0 && len(line)+len(chunk) > max+2 {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.ReadSlice('\n')
			}
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, max)
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}

// Encode marshals msg and appends the line terminator.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func WriteMessage(w *bufio.Writer, msg any) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

func ReadResponse(r *bufio.Reader, max int) (Response, error) {
	line, err := ReadLine(r, max)
	if err != nil {
		return Response{}, err
	}
	return DecodeResponse(line)
}

func DecodeResponse(line []byte) (Response, error) {
	var resp Response
	if err := resp.UnmarshalJSON(line); err != nil {
		return Response{}, err
	}
	return resp, nil
}
