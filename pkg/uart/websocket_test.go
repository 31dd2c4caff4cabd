// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newBridge starts a WebSocket server that sends a text message, then the
// given binary payloads, and forwards whatever it receives to echo.
func newBridge(t *testing.T, user, pass string, payloads [][]byte, echo chan<- []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for _, p := range payloads {
			conn.WriteMessage(websocket.BinaryMessage, p)
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if echo != nil {
				echo <- data
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURLFor(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestOpenWebSocketRejectsScheme(t *testing.T) {
	_, err := OpenWebSocket("http://example.com", "", "", false)
	require.Error(t, err)
}

func TestOpenWebSocketAuthFailure(t *testing.T) {
	srv := newBridge(t, "admin", "secret", nil, nil)
	_, err := OpenWebSocket(wsURLFor(srv), "admin", "wrong", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 401")
}

func TestWebSocketPortReceivesBinaryOnly(t *testing.T) {
	srv := newBridge(t, "admin", "secret", [][]byte{[]byte("+RECV"), []byte("=1,2,hi,-40,9\r\n")}, nil)
	p, err := OpenWebSocket(wsURLFor(srv), "admin", "secret", false)
	require.NoError(t, err)

	var (
		got  []byte
		done = make(chan struct{})
	)
	want := "+RECV=1,2,hi,-40,9\r\n"
	p.Attach(func() error {
		for {
			c, ok := p.TryReadByte()
			if !ok {
				break
			}
			got = append(got, c)
		}
		p.ClearStatus(link.StatusReceiveFull)
		if len(got) == len(want) {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("payload not received")
	}
	require.Equal(t, want, string(got))

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestWebSocketPortWrites(t *testing.T) {
	echo := make(chan []byte, 8)
	srv := newBridge(t, "", "", nil, echo)
	p, err := OpenWebSocket(wsURLFor(srv), "", "", false)
	require.NoError(t, err)
	defer p.conn.Close()

	require.NoError(t, p.WriteByte('A'))
	require.NoError(t, p.WriteByte('T'))
	require.Equal(t, []byte("A"), <-echo)
	require.Equal(t, []byte("T"), <-echo)
}
