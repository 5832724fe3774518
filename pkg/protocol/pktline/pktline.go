// Package pktline implements the pkt-line framing used by the git smart
// protocols: each packet is a 4-digit hex length (including the header
// itself) followed by the data, with "0000" acting as a flush packet.
package pktline

import (
	"fmt"
	"io"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// MaxPayload is the largest payload a single packet can carry
// (65520 minus the 4-byte header).
const MaxPayload = 65516

// ErrFlush is returned by Read when a flush packet is encountered.
var ErrFlush = goerr.New("pkt-line flush")

// Write frames data as a single packet.
func Write(w io.Writer, data []byte) error {
	if len(data) > MaxPayload {
		return goerr.Wrap(types.ErrValidationFailed, "pkt-line payload too large",
			goerr.V("size", len(data)),
		)
	}
	if _, err := fmt.Fprintf(w, "%04x", len(data)+4); err != nil {
		return goerr.Wrap(types.ErrTransportFailure, "writing pkt-line header")
	}
	if _, err := w.Write(data); err != nil {
		return goerr.Wrap(types.ErrTransportFailure, "writing pkt-line payload")
	}
	return nil
}

// WriteString frames a string as a single packet.
func WriteString(w io.Writer, s string) error {
	return Write(w, []byte(s))
}

// WriteFlush writes a flush packet.
func WriteFlush(w io.Writer) error {
	if _, err := io.WriteString(w, "0000"); err != nil {
		return goerr.Wrap(types.ErrTransportFailure, "writing flush packet")
	}
	return nil
}

// Read reads one packet payload. A flush packet yields ErrFlush, end of
// stream yields io.EOF.
func Read(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, goerr.Wrap(types.ErrTransportFailure, "reading pkt-line header")
	}

	size, err := strconv.ParseUint(string(header[:]), 16, 32)
	if err != nil {
		return nil, goerr.Wrap(types.ErrTransportFailure, "invalid pkt-line header",
			goerr.V("header", string(header[:])),
		)
	}

	if size == 0 {
		return nil, ErrFlush
	}
	if size < 4 || size-4 > MaxPayload {
		return nil, goerr.Wrap(types.ErrTransportFailure, "invalid pkt-line length",
			goerr.V("length", size),
		)
	}

	payload := make([]byte, size-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, goerr.Wrap(types.ErrTransportFailure, "reading pkt-line payload")
	}
	return payload, nil
}

// ReadLine reads one packet payload as a string with a trailing newline
// stripped.
func ReadLine(r io.Reader) (string, error) {
	payload, err := Read(r)
	if err != nil {
		return "", err
	}
	s := string(payload)
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	return s, nil
}
