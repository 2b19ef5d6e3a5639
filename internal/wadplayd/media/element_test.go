package media

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrale/wrale-adplay/internal/wadplayd/playback"
	"github.com/wrale/wrale-adplay/internal/wadplayd/vast"
)

func videoDescriptor(url string) *vast.Descriptor {
	return &vast.Descriptor{
		Creative: vast.Creative{Type: vast.CreativeLinear, DurationSeconds: 0.05},
		MediaCandidates: []vast.MediaCandidate{
			{URL: url, MimeType: "video/mp4", Delivery: vast.DeliveryProgressive},
		},
	}
}

func mediaServer(t *testing.T, ranges chan<- string) *httptest.Server {
	t.Helper()
	payload := bytes.Repeat([]byte{0x42}, 4096)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ad.mp4" {
			http.NotFound(w, r)
			return
		}
		if ranges != nil {
			select {
			case ranges <- r.Header.Get("Range"):
			default:
			}
		}
		http.ServeContent(w, r, "ad.mp4", time.Time{}, bytes.NewReader(payload))
	}))
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestElement_LoadBuffersInitialBurst(t *testing.T) {
	ranges := make(chan string, 1)
	srv := mediaServer(t, ranges)
	defer srv.Close()

	el := NewElement(srv.Client(), 1024, 5*time.Millisecond, zerolog.Nop())
	signals := el.Load(context.Background(), playback.Source{
		URL:      srv.URL + "/ad.mp4",
		MimeType: "video/mp4",
		Kind:     playback.KindVideo,
		Duration: 50 * time.Millisecond,
	})

	waitFor(t, signals.Metadata, "metadata")
	waitFor(t, signals.CanPlay, "can play")
	assert.Equal(t, "bytes=0-1023", <-ranges)
}

func TestElement_PlayRunsClockToEnd(t *testing.T) {
	srv := mediaServer(t, nil)
	defer srv.Close()

	el := NewElement(srv.Client(), 512, 5*time.Millisecond, zerolog.Nop())
	signals := el.Load(context.Background(), playback.Source{
		URL:      srv.URL + "/ad.mp4",
		Kind:     playback.KindVideo,
		Duration: 40 * time.Millisecond,
	})
	waitFor(t, signals.CanPlay, "can play")

	assert.ErrorIs(t, el.Play(), errNotAttached)
	require.NoError(t, el.Attach())
	require.NoError(t, el.Play())

	waitFor(t, signals.Playing, "playing")
	waitFor(t, signals.Ended, "ended")

	var last playback.Progress
drain:
	for {
		select {
		case p := <-signals.Time:
			last = p
		default:
			break drain
		}
	}
	assert.InDelta(t, 0.04, last.Duration, 0.0001)
	assert.InDelta(t, last.Duration, last.Current, 0.0001)
}

func TestElement_LoadFailures(t *testing.T) {
	srv := mediaServer(t, nil)
	defer srv.Close()

	tests := []struct {
		name string
		src  playback.Source
	}{
		{name: "not found", src: playback.Source{URL: srv.URL + "/missing.mp4", Kind: playback.KindVideo, Duration: time.Second}},
		{name: "unknown duration", src: playback.Source{URL: srv.URL + "/ad.mp4", Kind: playback.KindVideo}},
		{name: "unreachable", src: playback.Source{URL: "http://127.0.0.1:1/ad.mp4", Kind: playback.KindVideo, Duration: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := NewElement(srv.Client(), 512, 0, zerolog.Nop())
			signals := el.Load(context.Background(), tt.src)

			select {
			case err := <-signals.Failed:
				assert.Error(t, err)
			case <-signals.CanPlay:
				t.Fatal("failed media reported ready")
			case <-time.After(2 * time.Second):
				t.Fatal("no failure reported")
			}
			assert.ErrorIs(t, el.Attach(), errNotLoaded)
		})
	}
}

func TestElement_ImageIsTimedByEngine(t *testing.T) {
	srv := mediaServer(t, nil)
	defer srv.Close()

	el := NewElement(srv.Client(), 512, time.Millisecond, zerolog.Nop())
	signals := el.Load(context.Background(), playback.Source{URL: srv.URL + "/ad.mp4", Kind: playback.KindImage})
	waitFor(t, signals.CanPlay, "can play")
	require.NoError(t, el.Attach())
	require.NoError(t, el.Play())
	waitFor(t, signals.Playing, "playing")

	select {
	case <-signals.Ended:
		t.Fatal("image element must not end by itself")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestElement_ResetClearsSource(t *testing.T) {
	srv := mediaServer(t, nil)
	defer srv.Close()

	el := NewElement(srv.Client(), 512, time.Millisecond, zerolog.Nop())
	signals := el.Load(context.Background(), playback.Source{URL: srv.URL + "/ad.mp4", Kind: playback.KindVideo, Duration: time.Hour})
	waitFor(t, signals.CanPlay, "can play")
	require.NoError(t, el.Attach())
	require.NoError(t, el.Play())

	el.Pause()
	el.Reset()
	el.Reset()

	assert.ErrorIs(t, el.Attach(), errNotLoaded)
	assert.Empty(t, el.src.URL)
}

// The media element drives a real engine from preload to completion.
func TestElement_WithEngine(t *testing.T) {
	srv := mediaServer(t, nil)
	defer srv.Close()

	el := NewElement(srv.Client(), 512, 5*time.Millisecond, zerolog.Nop())
	engine := playback.NewEngine(el, nil, nil, playback.Config{PreloadTimeout: time.Second}, zerolog.Nop(), nil)
	defer engine.Cleanup()

	desc := videoDescriptor(srv.URL + "/ad.mp4")
	require.NoError(t, engine.Preload(context.Background(), desc))
	require.NoError(t, engine.Play(context.Background(), ""))

	waitFor(t, engine.Done(), "engine done")
	assert.Equal(t, playback.StateCompleted, engine.State())
	assert.Equal(t, 100, engine.Report().CompletionRate)
}
