// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records link traffic to a file of CBOR records and reads
// it back.
//
// Each record is a CBOR array [time, dir, data, crc]: time in Unix
// nanoseconds, dir 0 for received frames and 1 for transmitted commands,
// and a CRC-16/CCITT-FALSE of data.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/fxamacker/cbor/v2"
	"github.com/sigurn/crc16"
)

// ErrChecksum is returned by Reader.Next for a record whose data does not
// match its CRC.
var ErrChecksum = errors.New("capture: checksum mismatch")

// Direction of a record
type Direction uint8

const (
	DirRx Direction = iota
	DirTx
)

func (d Direction) String() string {
	switch d {
	case DirRx:
		return "rx"
	case DirTx:
		return "tx"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// Record is one captured frame or command.
type Record struct {
	_    struct{} `cbor:",toarray"`
	Time int64
	Dir  Direction
	Data []byte
	CRC  uint16
}

// At returns the record time.
func (r Record) At() time.Time {
	return time.Unix(0, r.Time)
}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the CRC stored in each record.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// NewRecord stamps and checksums data.
func NewRecord(at time.Time, dir Direction, data []byte) Record {
	return Record{
		Time: at.UnixNano(),
		Dir:  dir,
		Data: data,
		CRC:  Checksum(data),
	}
}

// Writer appends records to a stream. It implements link.Observer so it can
// be attached to a link directly; the first write error is kept and
// reported by Err and Close.
type Writer struct {
	link.NopObserver

	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *cbor.Encoder
	closer io.Closer
	err    error
	n      int
	now    func() time.Time
}

// NewWriter writes records to w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	cw := &Writer{
		buf: buf,
		enc: cbor.NewEncoder(buf),
		now: time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// Create opens path for appending and returns a Writer on it.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return NewWriter(f), nil
}

// Write appends one record and flushes it.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(r); err != nil {
		w.err = fmt.Errorf("encode record: %w", err)
		return w.err
	}
	if err := w.buf.Flush(); err != nil {
		w.err = fmt.Errorf("flush record: %w", err)
		return w.err
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close flushes and closes the underlying stream if it is closable.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.buf.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	if w.err != nil {
		return w.err
	}
	return err
}

// FrameParsed records a received frame.
func (w *Writer) FrameParsed(f link.Frame) {
	w.Write(NewRecord(f.At, DirRx, f.Data))
}

// CommandSent records a transmitted command.
func (w *Writer) CommandSent(cmd string, n int) {
	data := []byte(cmd)
	if n < len(data) {
		data = data[:n]
	}
	w.Write(NewRecord(w.now(), DirTx, data))
}

// Reader decodes records from a stream.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next record, io.EOF at the end of the stream, or
// ErrChecksum (with the record) when the data is corrupt.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if Checksum(rec.Data) != rec.CRC {
		return rec, fmt.Errorf("%w: record at %s", ErrChecksum, rec.At().Format(time.RFC3339Nano))
	}
	return rec, nil
}
