package pktline_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/protocol/pktline"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, pktline.WriteString(&buf, "want refs\n"))
	gt.NoError(t, pktline.WriteFlush(&buf))
	gt.NoError(t, pktline.Write(&buf, []byte("done")))

	payload := gt.R1(pktline.Read(&buf)).NoError(t)
	gt.Equal(t, string(payload), "want refs\n")

	_, err := pktline.Read(&buf)
	gt.True(t, errors.Is(err, pktline.ErrFlush))

	payload = gt.R1(pktline.Read(&buf)).NoError(t)
	gt.Equal(t, string(payload), "done")

	_, err = pktline.Read(&buf)
	gt.True(t, errors.Is(err, io.EOF))
}

func TestWriteFraming(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, pktline.WriteString(&buf, "hi\n"))
	gt.Equal(t, buf.String(), "0007hi\n")
}

func TestWriteRejectsOversizedPayload(t *testing.T) {
	err := pktline.Write(io.Discard, make([]byte, pktline.MaxPayload+1))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrValidationFailed))
}

func TestReadRejectsMalformedHeader(t *testing.T) {
	for _, input := range []string{"zzzz", "0002", "fff5"} {
		t.Run(input, func(t *testing.T) {
			_, err := pktline.Read(strings.NewReader(input))
			gt.Error(t, err)
			gt.True(t, errors.Is(err, types.ErrTransportFailure))
		})
	}
}

func TestReadLineStripsNewline(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, pktline.WriteString(&buf, "0000000000000000000000000000000000000000 refs/heads/main\n"))

	line := gt.R1(pktline.ReadLine(&buf)).NoError(t)
	gt.False(t, strings.HasSuffix(line, "\n"))
	gt.S(t, line).Contains("refs/heads/main")
}
