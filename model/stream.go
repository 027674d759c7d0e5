package model

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// RelayDeltas reads an upstream server-sent-event stream and calls emit with
// each non-empty choices[0].delta.content, in arrival order.
//
// A frame split across reads is held until its terminating newline arrives.
// Blank lines and non-data lines are ignored, malformed frames are skipped,
// and "data: [DONE]" ends the relay.
func RelayDeltas(r io.Reader, emit func(string) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			done, ferr := relayFrame(line, emit)
			if ferr != nil || done {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// relayFrame handles one line of the stream. done reports the end marker.
func relayFrame(line string, emit func(string) error) (done bool, err error) {
	line = strings.TrimSpace(line)
	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return false, nil
	}
	payload = strings.TrimSpace(payload)
	if payload == doneMarker {
		return true, nil
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return false, nil
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return false, nil
	}
	return false, emit(chunk.Choices[0].Delta.Content)
}
