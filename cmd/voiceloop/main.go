package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	orchestration "github.com/voiceloop/voiceloop-core/core"
	"github.com/voiceloop/voiceloop-core/core/audio/miniaudio"
	"github.com/voiceloop/voiceloop-core/core/llms/groq"
	sttdeepgram "github.com/voiceloop/voiceloop-core/core/speechtotext/deepgram"
	"github.com/voiceloop/voiceloop-core/core/texttospeech/elevenlabs"
	"github.com/voiceloop/voiceloop-core/core/texttospeech/espeak"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("deepgram-api-key", "", "Deepgram API key")
	rootCmd.PersistentFlags().String("groq-api-key", "", "Groq API key")
	rootCmd.PersistentFlags().String("elevenlabs-api-key", "", "ElevenLabs API key")
	rootCmd.PersistentFlags().String("voice-id", "", "ElevenLabs voice ID")
	rootCmd.PersistentFlags().String("locale", "en-US", "Transcription locale")
	rootCmd.PersistentFlags().String("synthesizer", "elevenlabs", "Speech synthesizer (elevenlabs or espeak)")
	rootCmd.PersistentFlags().Duration("endpoint-threshold", 2*time.Second, "Trailing silence that ends an utterance")
	rootCmd.PersistentFlags().String("instructions", defaultInstructions, "System prompt for reply generation")

	viper.BindPFlag("deepgram_api_key", rootCmd.PersistentFlags().Lookup("deepgram-api-key"))
	viper.BindPFlag("groq_api_key", rootCmd.PersistentFlags().Lookup("groq-api-key"))
	viper.BindPFlag("elevenlabs_api_key", rootCmd.PersistentFlags().Lookup("elevenlabs-api-key"))
	viper.BindPFlag("voice_id", rootCmd.PersistentFlags().Lookup("voice-id"))
	viper.BindPFlag("locale", rootCmd.PersistentFlags().Lookup("locale"))
	viper.BindPFlag("synthesizer", rootCmd.PersistentFlags().Lookup("synthesizer"))
	viper.BindPFlag("endpoint_threshold", rootCmd.PersistentFlags().Lookup("endpoint-threshold"))
	viper.BindPFlag("instructions", rootCmd.PersistentFlags().Lookup("instructions"))

	rootCmd.AddCommand(talkCmd)
}

const defaultInstructions = "You are a helpful voice assistant. Keep replies short and conversational; they will be spoken aloud."

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/voiceloop")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "voiceloop",
	Short: "Voiceloop is a real-time voice conversation loop",
	Long:  `Voiceloop listens for speech, generates a reply, speaks it back, and resumes listening until stopped.`,
}

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start a voice conversation",
	Run:   runTalk,
}

func runTalk(cmd *cobra.Command, args []string) {
	route, err := miniaudio.NewClient()
	if err != nil {
		logger.Fatal("Failed to open audio device", "error", err)
	}
	defer route.Close()

	transcriber, err := sttdeepgram.NewTranscriptionClient(sttdeepgram.Config{
		APIKey: viper.GetString("deepgram_api_key"),
		Locale: viper.GetString("locale"),
	})
	if err != nil {
		logger.Fatal("Failed to create transcription client", "error", err)
	}

	model, err := groq.NewClient(groq.Config{
		APIKey: viper.GetString("groq_api_key"),
	})
	if err != nil {
		logger.Fatal("Failed to create language model client", "error", err)
	}

	synthesizer, err := newSynthesizer()
	if err != nil {
		logger.Fatal("Failed to create speech synthesizer", "error", err)
	}

	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithTranscriptionClient(transcriber),
		orchestration.WithStreamingLLM(model),
		orchestration.WithSynthesisClient(synthesizer),
		orchestration.WithRouteManager(route),
		orchestration.WithLocale(viper.GetString("locale")),
		orchestration.WithEndpointThreshold(viper.GetDuration("endpoint_threshold")),
		orchestration.WithInstructions(viper.GetString("instructions")),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = orchestrator.Start(ctx,
		orchestration.WithTranscriptUpdateCallback(func(transcript string) {
			logger.Debug("Transcript", "text", transcript)
		}),
		orchestration.WithTurnFinalizedCallback(func(turn orchestration.ConversationTurn) {
			logger.Info("Turn", "speaker", turn.Speaker, "text", turn.Text)
		}),
		orchestration.WithStatusUpdateCallback(func(status orchestration.Status) {
			if status.Err != nil {
				logger.Error(status.Message, "error", status.Err)
				return
			}
			logger.Info(status.Message)
		}),
		orchestration.WithInstallProgressCallback(func(progress float64) {
			logger.Info("Downloading language model", "progress", fmt.Sprintf("%.0f%%", progress*100))
		}),
	)
	if err != nil {
		logger.Fatal("Failed to start conversation loop", "error", err)
	}

	<-ctx.Done()
	orchestrator.Stop()
}

func newSynthesizer() (orchestration.Synthesizer, error) {
	switch viper.GetString("synthesizer") {
	case "espeak":
		return espeak.NewSynthesisClient(espeak.Config{})
	case "elevenlabs":
		return elevenlabs.NewSynthesisClient(elevenlabs.Config{
			APIKey:  viper.GetString("elevenlabs_api_key"),
			VoiceID: viper.GetString("voice_id"),
		})
	default:
		return nil, fmt.Errorf("unknown synthesizer %q", viper.GetString("synthesizer"))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
