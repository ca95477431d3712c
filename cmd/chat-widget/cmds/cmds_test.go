package cmds

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "you said " + body.Message})
	})
	mux.HandleFunc("GET /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"session_id":"abc-123456","created_at":"2024-05-01T10:00:00"}]`))
	})
	mux.HandleFunc("DELETE /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "abc-123456" {
			http.Error(w, `{"detail":"Conversation session not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"message":"Conversation session closed successfully"}`))
	})
	mux.HandleFunc("GET /api/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "abc-123456" {
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"id":7,"message_type":"user","content":"old question"},{"id":8,"message_type":"ai","content":"old answer"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"BASE_URL", "USER_ID", "REQUEST_TIMEOUT", "JOURNAL", "JOURNAL_DSN", "REDIS_ADDR"} {
		t.Setenv("CHAT_WIDGET_"+k, "")
	}
	root, err := NewRootCommand()
	require.NoError(t, err)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err = root.Execute()
	return out.String(), err
}

func TestSendCommand(t *testing.T) {
	srv := backend(t)
	out, err := execute(t, "send", "--base-url", srv.URL, "hello", "there")
	require.NoError(t, err)
	require.Equal(t, "user: hello there\nassistant: you said hello there\n", out)
}

func TestSendCommand_BackendDown(t *testing.T) {
	srv := backend(t)
	url := srv.URL
	srv.Close()
	out, err := execute(t, "send", "--base-url", url, "hi")
	require.Error(t, err)
	require.Contains(t, out, "Sorry, I'm having trouble connecting right now.")
}

func TestSessionsCommand(t *testing.T) {
	srv := backend(t)
	out, err := execute(t, "sessions", "--base-url", srv.URL, "--user", "u1")
	require.NoError(t, err)
	require.Contains(t, out, "Session 123456")
	require.Contains(t, out, "abc-123456")
}

func TestShowCommand(t *testing.T) {
	srv := backend(t)
	out, err := execute(t, "show", "--base-url", srv.URL, "abc-123456")
	require.NoError(t, err)
	require.Equal(t, "user: old question\nassistant: old answer\n", out)

	_, err = execute(t, "show", "--base-url", srv.URL, "missing")
	require.Error(t, err)
}

func TestCloseCommand(t *testing.T) {
	srv := backend(t)
	out, err := execute(t, "close", "--base-url", srv.URL, "abc-123456")
	require.NoError(t, err)
	require.Equal(t, "closed abc-123456\n", out)

	_, err = execute(t, "close", "--base-url", srv.URL, "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Conversation session not found")
}

func TestCloseCommand_RefreshFailureIsAWarning(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Conversation session closed successfully"}`))
	})
	mux.HandleFunc("GET /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"database unavailable"}`, http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	out, err := execute(t, "close", "--base-url", srv.URL, "abc-123456")
	require.NoError(t, err)
	require.Contains(t, out, "closed abc-123456\n")
	require.Contains(t, out, "warning: list sessions: server returned 500: database unavailable")
}

func TestConfigFile(t *testing.T) {
	srv := backend(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base-url: "+srv.URL+"\nuser-id: from-file\n"), 0o600))

	out, err := execute(t, "show", "--config", path, "abc-123456")
	require.NoError(t, err)
	require.Equal(t, "user: old question\nassistant: old answer\n", out)

	// flags win over the file
	_, err = execute(t, "show", "--config", path, "--base-url", "nope", "abc-123456")
	require.Error(t, err)
}

func TestJournalCommand(t *testing.T) {
	srv := backend(t)
	dsn := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "send", "--base-url", srv.URL, "--journal", "sqlite", "--journal-dsn", dsn, "ping")
	require.NoError(t, err)

	out, err := execute(t, "journal", "--journal", "sqlite", "--journal-dsn", dsn)
	require.NoError(t, err)
	require.Contains(t, out, "action: append_message")
	require.Contains(t, out, "action: set_loading")

	out, err = execute(t, "journal", "--journal", "sqlite", "--journal-dsn", dsn, "--runs")
	require.NoError(t, err)
	require.Contains(t, out, "last_seq: 5")

	_, err = execute(t, "journal")
	require.Error(t, err)
}

func TestRootRejectsBadBaseURL(t *testing.T) {
	_, err := execute(t, "sessions", "--base-url", "nope")
	require.Error(t, err)
}
