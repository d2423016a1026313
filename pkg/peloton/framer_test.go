// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package peloton

import (
	"bytes"
	"testing"

	"smartspin-go/pkg/log"
)

type fakeTransport struct {
	rx []byte
	tx [][]byte
}

func (f *fakeTransport) BytesAvailable() int { return len(f.rx) }

func (f *fakeTransport) Read(p []byte) (int, error) {
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.tx = append(f.tx, append([]byte(nil), p...))
	return len(p), nil
}

type fakeIntake struct {
	sources []string
	frames  [][]byte
}

func (f *fakeIntake) CollectAndSet(source string, payload []byte) {
	f.sources = append(f.sources, source)
	f.frames = append(f.frames, append([]byte(nil), payload...))
}

func TestExtractFrame(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []byte
		ok   bool
	}{
		{
			name: "clean frame",
			data: []byte{0xF1, 0x41, 0x02, 0x30, 0x64, 0xC8, 0xF6},
			want: []byte{0xF1, 0x41, 0x02, 0x30, 0x64, 0xC8, 0xF6},
			ok:   true,
		},
		{
			name: "leading garbage",
			data: []byte{0x00, 0x12, 0xF1, 0x44, 0x01, 0x99, 0xCF, 0xF6},
			want: []byte{0xF1, 0x44, 0x01, 0x99, 0xCF, 0xF6},
			ok:   true,
		},
		{
			name: "trailing bytes after footer ignored",
			data: []byte{0xF1, 0x41, 0x01, 0x50, 0x83, 0xF6, 0xF1, 0x41},
			want: []byte{0xF1, 0x41, 0x01, 0x50, 0x83, 0xF6},
			ok:   true,
		},
		{
			name: "header without footer",
			data: []byte{0xF1, 0x41, 0x02, 0x30},
			ok:   false,
		},
		{
			name: "no header",
			data: []byte{0x41, 0x02, 0x30, 0xF6, 0x00, 0x00},
			ok:   false,
		},
		{
			name: "empty",
			data: nil,
			ok:   false,
		},
		{
			name: "adjacent sentinels",
			data: []byte{0xF1, 0xF6},
			want: []byte{0xF1, 0xF6},
			ok:   true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractFrame(tc.data)
			if ok != tc.ok {
				t.Fatalf("extractFrame() ok = %v, want %v", ok, tc.ok)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("extractFrame() = % X, want % X", got, tc.want)
			}
		})
	}
}

func TestPollBelowThresholdDoesNotRead(t *testing.T) {
	tr := &fakeTransport{rx: []byte{0xF1, 0x41, 0x02, 0x30, 0x64, 0xC8, 0xF6}}
	in := &fakeIntake{}
	f := NewFramer(tr, in, false, log.Discard())

	f.Poll()
	if len(in.frames) != 0 {
		t.Fatalf("frames handed off = %d, want 0 below threshold", len(in.frames))
	}
	if len(tr.rx) != 7 {
		t.Errorf("pending bytes = %d, want 7 untouched", len(tr.rx))
	}
}

func TestPollExtractsAndTags(t *testing.T) {
	frame := []byte{0xF1, 0x41, 0x02, 0x30, 0x64, 0xC8, 0xF6}
	tr := &fakeTransport{rx: append([]byte{0x00}, frame...)}
	in := &fakeIntake{}
	f := NewFramer(tr, in, false, log.Discard())

	f.Poll()
	if len(in.frames) != 1 {
		t.Fatalf("frames handed off = %d, want 1", len(in.frames))
	}
	if !bytes.Equal(in.frames[0], frame) {
		t.Errorf("frame = % X, want % X", in.frames[0], frame)
	}
	if in.sources[0] != SourceID {
		t.Errorf("source = %q, want %q", in.sources[0], SourceID)
	}
}

func TestPollAlternatesQueries(t *testing.T) {
	tr := &fakeTransport{}
	f := NewFramer(tr, &fakeIntake{}, true, log.Discard())

	// First poll transmits immediately; after that the period is
	// TxCheckInterval+1 polls, so polls 0, 21 and 42 transmit.
	for i := 0; i <= 2*(TxCheckInterval+1); i++ {
		f.Poll()
	}
	if len(tr.tx) != 3 {
		t.Fatalf("transmits = %d, want 3", len(tr.tx))
	}
	want := [][]byte{RequestCadence, RequestWatts, RequestCadence}
	for i, q := range want {
		if !bytes.Equal(tr.tx[i], q) {
			t.Errorf("tx[%d] = % X, want % X", i, tr.tx[i], q)
		}
	}
}

func TestPollRxRearmsImmediateQuery(t *testing.T) {
	tr := &fakeTransport{}
	f := NewFramer(tr, &fakeIntake{}, true, log.Discard())

	f.Poll() // immediate first query
	tr.tx = nil

	tr.rx = []byte{0xF1, 0x41, 0x02, 0x30, 0x64, 0xC8, 0xF6, 0x00}
	f.Poll()
	if len(tr.tx) != 1 {
		t.Fatalf("transmits after rx = %d, want immediate re-arm", len(tr.tx))
	}
}

func TestPollTxDisabled(t *testing.T) {
	tr := &fakeTransport{}
	f := NewFramer(tr, &fakeIntake{}, false, log.Discard())
	for i := 0; i < 3*TxCheckInterval; i++ {
		f.Poll()
	}
	if len(tr.tx) != 0 {
		t.Errorf("transmits = %d, want 0 with tx disabled", len(tr.tx))
	}
}

func TestQueryChecksums(t *testing.T) {
	for _, q := range [][]byte{RequestWatts, RequestCadence} {
		if got := byte(int(q[0])+int(q[1])) & 0xFF; got != q[2] {
			t.Errorf("query % X checksum = %#02x, want %#02x", q, q[2], got)
		}
	}
}
