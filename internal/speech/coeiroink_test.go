package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harube/kakeai/internal/config"
)

const prosodyDetail = `[[{"phoneme":"k","hira":"か"},{"phoneme":"a","hira":"か"}]]`

func testConfig(baseURL string) config.SpeechConfig {
	return config.SpeechConfig{
		BaseURL:    baseURL,
		SpeedScale: 1.0,
		SampleRate: 44100,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}
}

func newTestClient(baseURL string) *CoeiroinkClient {
	c := NewCoeiroinkClient(testConfig(baseURL), zerolog.Nop())
	c.retryBase = time.Millisecond
	return c
}

func TestSynthesizeHappyPath(t *testing.T) {
	wav := []byte("RIFF....WAVEfake")
	var synthPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/estimate_prosody":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "かきくけこ", body["text"])
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"detail": ` + prosodyDetail + `}`))
		case "/v1/synthesis":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&synthPayload))
			w.Write(wav)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Synthesize(context.Background(), &Request{
		Text:      "かきくけこ",
		VoiceUUID: "voice-1234",
		StyleID:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, wav, res.Audio)
	assert.Equal(t, 44100, res.SampleRate)

	// The synthesis payload carries the prosody detail through
	// unchanged plus the voice and scale parameters.
	assert.Equal(t, "voice-1234", synthPayload["speakerUuid"])
	assert.Equal(t, float64(7), synthPayload["styleId"])
	assert.Equal(t, "かきくけこ", synthPayload["text"])
	assert.Equal(t, 1.0, synthPayload["speedScale"])
	assert.Equal(t, float64(44100), synthPayload["outputSamplingRate"])

	var wantDetail any
	require.NoError(t, json.Unmarshal([]byte(prosodyDetail), &wantDetail))
	assert.Equal(t, wantDetail, synthPayload["prosodyDetail"])
}

func TestSynthesizeRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/estimate_prosody" {
			if calls.Add(1) == 1 {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"detail": ` + prosodyDetail + `}`))
			return
		}
		w.Write([]byte("wav"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Synthesize(context.Background(), &Request{Text: "てすと", VoiceUUID: "v", StyleID: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("wav"), res.Audio)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSynthesizeFailsFastOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad style id", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Synthesize(context.Background(), &Request{Text: "てすと", VoiceUUID: "v", StyleID: 999})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "422")
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	c := newTestClient("http://localhost:1")
	_, err := c.Synthesize(context.Background(), &Request{Text: "   ", VoiceUUID: "v"})
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestSynthesizeRejectsMissingVoice(t *testing.T) {
	c := newTestClient("http://localhost:1")
	_, err := c.Synthesize(context.Background(), &Request{Text: "てすと"})
	assert.ErrorIs(t, err, ErrVoiceNotFound)
}

func TestIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speakers", r.URL.Path)
		w.Write([]byte(`[]`))
	}))
	c := newTestClient(srv.URL)
	assert.True(t, c.IsAvailable(context.Background()))

	srv.Close()
	assert.False(t, c.IsAvailable(context.Background()))
}
