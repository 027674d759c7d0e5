package model

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func collect(t *testing.T, r io.Reader) []string {
	t.Helper()
	var got []string
	if err := RelayDeltas(r, func(s string) error {
		got = append(got, s)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return got
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRelayDeltasSplitFrames(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	// One byte per read forces every frame to be split mid-way.
	got := collect(t, iotest.OneByteReader(strings.NewReader(stream)))
	if want := []string{"Hel", "lo"}; !equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRelayDeltasStopsAtDone(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: [DONE]\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"
	got := collect(t, strings.NewReader(stream))
	if want := []string{"a"}; !equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRelayDeltasSkipsMalformedAndEmpty(t *testing.T) {
	stream := ": keep-alive\n" +
		"data: {not json\n" +
		"data: {\"choices\":[]}\n" +
		"data: {\"choices\":[{\"delta\":{}}]}\n" +
		"event: ping\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\r\n"
	got := collect(t, strings.NewReader(stream))
	if want := []string{"ok"}; !equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRelayDeltasTrailingFrameWithoutNewline(t *testing.T) {
	got := collect(t, strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}"))
	if want := []string{"x"}; !equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRelayDeltasEmitErrorStops(t *testing.T) {
	stop := errors.New("client gone")
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"
	calls := 0
	err := RelayDeltas(strings.NewReader(stream), func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 emit call, got %d", calls)
	}
}

func TestRelayDeltasReadError(t *testing.T) {
	boom := errors.New("boom")
	err := RelayDeltas(iotest.ErrReader(boom), func(string) error { return nil })
	if !errors.Is(err, boom) {
		t.Errorf("expected read error, got %v", err)
	}
}
