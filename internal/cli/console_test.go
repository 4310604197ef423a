package cli

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/warboard/warboard/internal/api"
	"github.com/warboard/warboard/internal/warroom"
)

func consoleController(t *testing.T, handler http.Handler) *warroom.Controller {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return warroom.NewController("evt-1", warroom.Deps{
		Client:   api.NewClient(srv.URL, nil, api.Options{PollRetries: 1}),
		Renderer: warroom.NewTerminalRenderer(io.Discard),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHandleConsoleLineQuit(t *testing.T) {
	ctrl := consoleController(t, http.NotFoundHandler())
	if !handleConsoleLine(ctrl, "/quit") {
		t.Fatal("/quit should end the session")
	}
	if !handleConsoleLine(ctrl, "/exit") {
		t.Fatal("/exit should end the session")
	}
}

func TestHandleConsoleLineIgnoresBlankAndUnknown(t *testing.T) {
	ctrl := consoleController(t, http.NotFoundHandler())
	if handleConsoleLine(ctrl, "   ") {
		t.Fatal("blank line should not end the session")
	}
	if handleConsoleLine(ctrl, "/bogus") {
		t.Fatal("unknown command should not end the session")
	}
	if handleConsoleLine(ctrl, "/done onlykey") {
		t.Fatal("incomplete submit should not end the session")
	}
}

func TestHandleConsoleLineSendsChat(t *testing.T) {
	var sends atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/event/send_message/evt-1", func(w http.ResponseWriter, r *http.Request) {
		sends.Add(1)
		w.Write([]byte(`{"status":"success","data":{"id":1,"message_id":"m-1","message_type":"plain","message_content":"hello"}}`))
	})
	ctrl := consoleController(t, mux)

	if handleConsoleLine(ctrl, "hello") {
		t.Fatal("chat line should not end the session")
	}
	if sends.Load() != 1 {
		t.Fatal("chat line should hit the send endpoint")
	}
}

func TestHandleConsoleLineSubmitsResult(t *testing.T) {
	var completes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/event/evt-1/execution/ex-1/complete", func(w http.ResponseWriter, r *http.Request) {
		completes.Add(1)
		w.Write([]byte(`{"status":"success"}`))
	})
	ctrl := consoleController(t, mux)

	if handleConsoleLine(ctrl, "/done ex-1 two hosts compromised") {
		t.Fatal("submit should not end the session")
	}
	if completes.Load() != 1 {
		t.Fatal("submit should hit the completion endpoint")
	}
}
