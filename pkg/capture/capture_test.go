// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestChecksumCCITTFalse(t *testing.T) {
	// Standard check value for CRC-16/CCITT-FALSE
	if got := Checksum([]byte("123456789")); got != 0x29B1 {
		t.Errorf("Checksum = 0x%04X, want 0x29B1", got)
	}
}

func TestWriterObserver(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var o link.Observer = w

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	o.FrameParsed(link.Frame{Data: []byte("+OK\r\n"), At: at})
	o.CommandSent("AT+ADDRESS=2\r\n", 14)
	o.BytesReceived(5) // not recorded
	require.NoError(t, w.Err())
	require.Equal(t, 2, w.Count())

	r := NewReader(&buf)
	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, DirRx, rec.Dir)
	require.Equal(t, []byte("+OK\r\n"), rec.Data)
	require.True(t, rec.At().Equal(at))

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, DirTx, rec.Dir)
	require.Equal(t, "AT+ADDRESS=2\r\n", string(rec.Data))

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestCommandSentPartialWrite(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.CommandSent("AT\x00junk", 2)

	rec, err := NewReader(&buf).Next()
	require.NoError(t, err)
	require.Equal(t, []byte("AT"), rec.Data)
}

func TestReaderDetectsCorruption(t *testing.T) {
	rec := NewRecord(time.Now(), DirRx, []byte("+RECV=1,2,hi,-40,9"))
	rec.CRC ^= 0xFFFF
	data, err := cbor.Marshal(rec)
	require.NoError(t, err)

	got, err := NewReader(bytes.NewReader(data)).Next()
	require.True(t, errors.Is(err, ErrChecksum))
	require.Equal(t, rec.Data, got.Data)
}

func TestReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(NewRecord(time.Now(), DirRx, []byte("hello"))))

	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := NewReader(bytes.NewReader(truncated)).Next()
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
}

func TestCreateAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.cap")

	for i := 0; i < 2; i++ {
		w, err := Create(path)
		require.NoError(t, err)
		require.NoError(t, w.Write(NewRecord(time.Now(), DirTx, []byte{byte('a' + i)})))
		require.NoError(t, w.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := NewReader(f)
	var got []byte
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, rec.Data...)
	}
	require.Equal(t, []byte("ab"), got)
}

func TestDirectionString(t *testing.T) {
	if DirRx.String() != "rx" || DirTx.String() != "tx" || Direction(7).String() != "dir(7)" {
		t.Error("unexpected Direction strings")
	}
}
