package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptor = `<VAST version="3.0">
  <Ad id="a-1">
    <InLine>
      <AdTitle>Spot</AdTitle>
      <Impression>https://t.example/imp</Impression>
      <Creatives><Creative><Linear>
        <Duration>00:00:15</Duration>
        <MediaFiles>
          <MediaFile delivery="streaming" type="application/x-mpegURL">https://cdn.example/ad.m3u8</MediaFile>
          <MediaFile delivery="progressive" type="video/mp4" bitrate="800" width="1280" height="720">https://cdn.example/800.mp4</MediaFile>
        </MediaFiles>
      </Linear></Creative></Creatives>
    </InLine>
  </Ad>
</VAST>`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WADPLAYCTL_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv(EnvServer, "")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDecode_SelectsProgressiveMedia(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ad.xml")
	require.NoError(t, os.WriteFile(path, []byte(descriptor), 0o600))

	out, err := run(t, "", "decode", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Linear, 15.0s")
	assert.Contains(t, out, "*  video/mp4")
}

func TestDecode_JSONFromStdin(t *testing.T) {
	out, err := run(t, descriptor, "decode", "-o", "json", "-")
	require.NoError(t, err)

	var result struct {
		Selected struct {
			URL string
		} `json:"selected"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "https://cdn.example/800.mp4", result.Selected.URL)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := run(t, "<html/>", "decode", "-")
	assert.Error(t, err)
}

func TestStatusAndTrigger(t *testing.T) {
	var triggered atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1alpha1/status":
			io.WriteString(w, "ready")
		case "/api/v1alpha1/trigger":
			triggered.Store(true)
			w.WriteHeader(http.StatusAccepted)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := run(t, "", "--server", srv.URL, "status")
	require.NoError(t, err)
	assert.Equal(t, "ready\n", out)

	out, err = run(t, "", "--server", srv.URL, "trigger")
	require.NoError(t, err)
	assert.Equal(t, "trigger sent\n", out)
	assert.True(t, triggered.Load())
}

func TestStatus_WaitUntilDecided(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			io.WriteString(w, "wait")
			return
		}
		io.WriteString(w, "skip:no offer available")
	}))
	defer srv.Close()

	out, err := run(t, "", "--server", srv.URL, "status", "--wait", "--timeout", "5s")
	require.NoError(t, err)
	assert.Equal(t, "skip:no offer available\n", out)
	assert.Equal(t, int32(3), polls.Load())
}

func TestStatus_RejectsUnknownValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "playing")
	}))
	defer srv.Close()

	_, err := run(t, "", "--server", srv.URL, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")
}

func TestStatus_NoServerConfigured(t *testing.T) {
	_, err := run(t, "", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server configured")
}

func TestConfig_SetAndUseContext(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)

	root.SetArgs([]string{"--config", cfgPath, "config", "set-context", "bench", "--server", "http://127.0.0.1:8085"})
	require.NoError(t, root.Execute())

	root = NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", cfgPath, "config", "set-context", "bad", "--server", "not a url"})
	assert.Error(t, root.Execute())

	out.Reset()
	root = NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "config", "get-context"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "bench")
	assert.Contains(t, out.String(), "*")
}
