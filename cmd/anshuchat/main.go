// Command anshuchat is an interactive terminal client for the turn relay.
// It reads lines from stdin, runs each through the generation and synthesis
// pipeline, prints the reply, and writes the audio next to the prompt. Typing
// "exit" ends the session.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/AnshuAditya03/Anshu-backend/internal/bootstrap"
	"github.com/AnshuAditya03/Anshu-backend/internal/config"
	"github.com/AnshuAditya03/Anshu-backend/internal/relay"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	outDir := flag.String("out", "out", "directory for synthesized audio files")
	targetLang := flag.String("lang", "", "target language code (defaults to the configured default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "anshuchat: %v\n", err)
		return 1
	}

	// The chat client only logs warnings and errors so the conversation stays
	// readable.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	bootstrap.RegisterBuiltins(ctx, reg)

	llmP, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "anshuchat: create llm provider: %v\n", err)
		return 1
	}
	ttsP, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "anshuchat: create tts provider: %v\n", err)
		return 1
	}

	voices, err := bootstrap.BuildVoiceTable(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "anshuchat: %v\n", err)
		return 1
	}

	var relayOpts []relay.Option
	if cfg.Relay.SystemPrompt != "" {
		relayOpts = append(relayOpts, relay.WithSystemPrompt(cfg.Relay.SystemPrompt))
	}
	if cfg.Relay.Temperature != 0 {
		relayOpts = append(relayOpts, relay.WithTemperature(cfg.Relay.Temperature))
	}
	rel := relay.New(llmP, ttsP, voices, relayOpts...)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "anshuchat: create output dir: %v\n", err)
		return 1
	}

	sess := relay.NewSession("repl", cfg.Relay.HistoryLimit)

	fmt.Println("anshuchat: type a message, or \"exit\" to quit")
	scanner := bufio.NewScanner(os.Stdin)
	turn := 0

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			break
		}

		res, err := rel.Process(ctx, sess, relay.Request{
			Text:           line,
			TargetLanguage: *targetLang,
		})
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}

		turn++
		fmt.Println(res.GeneratedText)

		path := filepath.Join(*outDir, fmt.Sprintf("turn-%03d%s", turn, audioExt(res.AudioEncoding)))
		if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write audio: %v\n", err)
			continue
		}
		fmt.Printf("  audio: %s (%d bytes, %s)\n", path, len(res.Audio), res.Voice.Locale)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "anshuchat: read stdin: %v\n", err)
		return 1
	}
	fmt.Println("bye")
	return 0
}

// audioExt picks a file extension for the synthesized payload.
func audioExt(encoding string) string {
	switch encoding {
	case "audio/mpeg":
		return ".mp3"
	case "audio/L16", "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}
