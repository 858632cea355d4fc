package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoster(t *testing.T, handler http.HandlerFunc) *XPoster {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewXPoster("tok123", zerolog.Nop())
	p.endpoint = srv.URL
	return p
}

func TestPost(t *testing.T) {
	var gotAuth, gotBody string
	p := newTestPoster(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"1801","text":"..."}}`)
	})

	url, err := p.Post(context.Background(), "新作出ました https://youtu.be/abc #猫")
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/i/status/1801", url)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Contains(t, gotBody, "新作出ました")
}

func TestPostRejected(t *testing.T) {
	p := newTestPoster(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"title":"Forbidden"}`, http.StatusForbidden)
	})

	_, err := p.Post(context.Background(), "テキスト")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestPostMalformedResponse(t *testing.T) {
	p := newTestPoster(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{}}`)
	})

	_, err := p.Post(context.Background(), "テキスト")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected post response")
}

func TestPostWithoutToken(t *testing.T) {
	p := NewXPoster("", zerolog.Nop())
	_, err := p.Post(context.Background(), "テキスト")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPostEmptyText(t *testing.T) {
	p := NewXPoster("tok", zerolog.Nop())
	_, err := p.Post(context.Background(), "   ")
	require.Error(t, err)
}

func TestPostRefusesUnresolvedPlaceholder(t *testing.T) {
	p := NewXPoster("tok", zerolog.Nop())
	_, err := p.Post(context.Background(), "見てね {youtube_url}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), URLPlaceholder)
}
