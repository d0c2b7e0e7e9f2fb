package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterFallback(t *testing.T) {
	r := NewRouter(map[string]string{"a": "backend-a", "b": "backend-b"}, "a")

	got, err := r.Route("b")
	require.NoError(t, err)
	assert.Equal(t, "backend-b", got)

	got, err = r.Route("unknown")
	require.NoError(t, err)
	assert.Equal(t, "backend-a", got)

	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("unknown"))
	assert.ElementsMatch(t, []string{"a", "b"}, r.Engines())
}

func TestRouterNoFallback(t *testing.T) {
	r := NewRouter(map[string]string{"a": "backend-a"}, "missing")
	_, err := r.Route("unknown")
	assert.Error(t, err)
}

type stubGenerator struct {
	lastModel string
}

func (s *stubGenerator) Generate(ctx context.Context, systemPrompt, userPrompt, model string, onToken TokenCallback) (*GenResult, error) {
	s.lastModel = model
	return &GenResult{Content: "ok"}, nil
}

func TestResponderRawDispatch(t *testing.T) {
	r := NewResponder("raw", 100)
	stub := &stubGenerator{}
	r.RegisterRaw("raw", stub, "default-model")

	res, err := r.Generate(context.Background(), "sys", "user", "", "raw", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, "default-model", stub.lastModel)

	_, err = r.Generate(context.Background(), "sys", "user", "override", "raw", nil)
	require.NoError(t, err)
	assert.Equal(t, "override", stub.lastModel)
}

func TestResponderUnknownEngine(t *testing.T) {
	r := NewResponder("nothing", 100)
	_, err := r.Generate(context.Background(), "sys", "user", "", "ghost", nil)
	assert.Error(t, err)
}

func TestOllamaClientStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/chat", req.URL.Path)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hej "}}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"med dig."}}`)
		fmt.Fprintln(w, `{"done":true,"prompt_eval_count":12,"eval_count":5}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "test-model", 100, 2)

	var tokens []string
	res, err := c.Generate(context.Background(), "sys", "user", "", func(tok string) {
		tokens = append(tokens, tok)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hej med dig.", res.Content)
	assert.Equal(t, 12, res.TokensIn)
	assert.Equal(t, 5, res.TokensOut)
	assert.Equal(t, []string{"Hej ", "med dig."}, tokens)
}

func TestOllamaClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "test-model", 100, 2)
	_, err := c.Generate(context.Background(), "sys", "user", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWhisperClientTranscribes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/inference", req.URL.Path)
		require.NoError(t, req.ParseMultipartForm(1<<20))
		f, _, err := req.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		header := make([]byte, 4)
		_, err = io.ReadFull(f, header)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(header))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":" Hello there. ","language":"en","no_speech_prob":0.02}`)
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL, 2)
	stream, err := c.TranscribeStream(context.Background(), make([]float32, 1600))
	require.NoError(t, err)

	var results []TranscriptionResult
	for r := range stream {
		results = append(results, r)
	}
	require.Len(t, results, 1)
	assert.Equal(t, " Hello there. ", results[0].Text)
	assert.Equal(t, "en", results[0].Language)
	assert.True(t, results[0].IsFinal)
	assert.InDelta(t, 0.98, results[0].Confidence, 1e-6)
}

func TestNoiseClientSuppress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/suppress", req.URL.Path)
		assert.Equal(t, "16000", req.URL.Query().Get("rate"))
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		// halve each sample and send it back
		for i := 0; i+4 <= len(body); i += 4 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(body[i:]))
			binary.LittleEndian.PutUint32(body[i:], math.Float32bits(v/2))
		}
		w.Write(body)
	}))
	defer srv.Close()

	c := NewNoiseClient(srv.URL)
	out, err := c.Suppress(context.Background(), []float32{0.5, -0.25, 1.0}, 16000)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.25, out[0], 1e-6)
	assert.InDelta(t, -0.125, out[1], 1e-6)
	assert.InDelta(t, 0.5, out[2], 1e-6)
}
