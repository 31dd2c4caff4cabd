// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rylr

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is returned for a recognised response line whose fields do
// not parse.
var ErrMalformed = errors.New("rylr: malformed response")

// Kind classifies a response line.
type Kind int

const (
	KindUnknown Kind = iota
	KindOK
	KindError
	KindReady
	KindReceive
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindError:
		return "ERR"
	case KindReady:
		return "READY"
	case KindReceive:
		return "RECV"
	default:
		return "UNKNOWN"
	}
}

// Reception is a payload delivered by +RECV.
type Reception struct {
	Address uint16
	Length  int
	Data    []byte
	RSSI    int // dBm
	SNR     int
}

// Response is one decoded line from the modem.
type Response struct {
	Kind      Kind
	Code      int        // KindError only
	Reception *Reception // KindReceive only
	Raw       []byte
}

var (
	prefixRecv  = []byte("+RECV=")
	prefixErr   = []byte("+ERR=")
	prefixOK    = []byte("+OK")
	prefixReady = []byte("+READY")
)

// ParseResponse decodes a response line. Trailing CR/LF is ignored.
// Lines that match no known response are returned as KindUnknown with no
// error.
func ParseResponse(line []byte) (Response, error) {
	raw := bytes.TrimRight(line, "\r\n\x00")
	resp := Response{Kind: KindUnknown, Raw: raw}

	switch {
	case bytes.HasPrefix(raw, prefixRecv):
		rx, err := parseReception(raw[len(prefixRecv):])
		if err != nil {
			return resp, err
		}
		resp.Kind = KindReceive
		resp.Reception = rx

	case bytes.HasPrefix(raw, prefixErr):
		code, err := strconv.Atoi(string(raw[len(prefixErr):]))
		if err != nil {
			return resp, fmt.Errorf("%w: error code %q", ErrMalformed, raw[len(prefixErr):])
		}
		resp.Kind = KindError
		resp.Code = code

	case bytes.Equal(raw, prefixOK):
		resp.Kind = KindOK

	case bytes.Equal(raw, prefixReady):
		resp.Kind = KindReady
	}

	return resp, nil
}

// parseReception decodes "<addr>,<len>,<data>,<rssi>,<snr>". The data field
// may itself contain commas, so it is sliced by length.
func parseReception(b []byte) (*Reception, error) {
	addrField, rest, ok := bytes.Cut(b, []byte(","))
	if !ok {
		return nil, fmt.Errorf("%w: missing length field", ErrMalformed)
	}
	lenField, rest, ok := bytes.Cut(rest, []byte(","))
	if !ok {
		return nil, fmt.Errorf("%w: missing data field", ErrMalformed)
	}

	addr, err := strconv.ParseUint(string(addrField), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: address %q", ErrMalformed, addrField)
	}
	length, err := strconv.Atoi(string(lenField))
	if err != nil || length < 0 || length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: length %q", ErrMalformed, lenField)
	}
	if len(rest) < length+1 || rest[length] != ',' {
		return nil, fmt.Errorf("%w: data shorter than declared length %d", ErrMalformed, length)
	}

	data := make([]byte, length)
	copy(data, rest[:length])

	rssiField, snrField, ok := bytes.Cut(rest[length+1:], []byte(","))
	if !ok {
		return nil, fmt.Errorf("%w: missing snr field", ErrMalformed)
	}
	rssi, err := strconv.Atoi(string(rssiField))
	if err != nil {
		return nil, fmt.Errorf("%w: rssi %q", ErrMalformed, rssiField)
	}
	snr, err := strconv.Atoi(string(snrField))
	if err != nil {
		return nil, fmt.Errorf("%w: snr %q", ErrMalformed, snrField)
	}

	return &Reception{
		Address: uint16(addr),
		Length:  length,
		Data:    data,
		RSSI:    rssi,
		SNR:     snr,
	}, nil
}
