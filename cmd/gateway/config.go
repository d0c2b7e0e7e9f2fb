package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crosstalk-ai/gateway/internal/audio"
)

type config struct {
	port                  string
	whisperURL            string
	sttPoolSize           int
	piperURL              string
	piperVoices           map[string]string
	openaiSpeechURL       string
	openaiSpeechModel     string
	openaiSpeechVoice     string
	ttsPoolSize           int
	ollamaURL             string
	ollamaModel           string
	openaiAPIKey          string
	openaiBaseURL         string
	openaiModel           string
	genMaxTokens          int
	genFallbackEngine     string
	acousticURL           string
	acousticPoolSize      int
	noiseURL              string
	traceDatabaseURL      string
	maxConcurrentSessions int
	vadConfig             audio.VADConfig
}

func loadConfig() config {
	vad := audio.DefaultVADConfig()
	vad.SpeechThresholdDB = envFloat("VAD_SPEECH_THRESHOLD_DB", vad.SpeechThresholdDB)
	if ms := envInt("VAD_SILENCE_MS", 0); ms > 0 {
		vad.SilenceTimeout = time.Duration(ms) * time.Millisecond
	}

	return config{
		port:                  envStr("GATEWAY_PORT", "8000"),
		whisperURL:            envStr("WHISPER_URL", "http://localhost:8080"),
		sttPoolSize:           envInt("STT_POOL_SIZE", 50),
		piperURL:              envStr("PIPER_URL", "http://localhost:5100"),
		piperVoices:           envVoiceMap("PIPER_VOICES", defaultPiperVoices()),
		openaiSpeechURL:       envStr("OPENAI_SPEECH_URL", ""),
		openaiSpeechModel:     envStr("OPENAI_SPEECH_MODEL", "tts-1"),
		openaiSpeechVoice:     envStr("OPENAI_SPEECH_VOICE", "alloy"),
		ttsPoolSize:           envInt("TTS_POOL_SIZE", 50),
		ollamaURL:             envStr("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:           envStr("OLLAMA_MODEL", "llama3.2:3b"),
		openaiAPIKey:          envStr("OPENAI_API_KEY", ""),
		openaiBaseURL:         envStr("OPENAI_BASE_URL", ""),
		openaiModel:           envStr("OPENAI_MODEL", "gpt-4o-mini"),
		genMaxTokens:          envInt("GEN_MAX_TOKENS", 400),
		genFallbackEngine:     envStr("GEN_FALLBACK_ENGINE", "ollama"),
		acousticURL:           envStr("ACOUSTIC_URL", ""),
		acousticPoolSize:      envInt("ACOUSTIC_POOL_SIZE", 10),
		noiseURL:              envStr("NOISE_URL", ""),
		traceDatabaseURL:      envStr("TRACE_DATABASE_URL", ""),
		maxConcurrentSessions: envInt("MAX_CONCURRENT_SESSIONS", 100),
		vadConfig:             vad,
	}
}

func defaultPiperVoices() map[string]string {
	return map[string]string{
		"en": "en_US-lessac-medium",
		"es": "es_ES-davefx-medium",
		"fr": "fr_FR-siwis-medium",
		"de": "de_DE-thorsten-medium",
		"da": "da_DK-talesyntese-medium",
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

// envVoiceMap parses "lang=voice,lang=voice" pairs, overlaying fallback.
func envVoiceMap(key string, fallback map[string]string) map[string]string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	out := make(map[string]string, len(fallback))
	for k, v := range fallback {
		out[k] = v
	}
	for _, pair := range strings.Split(val, ",") {
		lang, voice, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && lang != "" && voice != "" {
			out[lang] = voice
		}
	}
	return out
}
