// Package main is a terminal client for the site backend: it checks health,
// submits contact leads and runs a live voice-demo session against the dev relay.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/config"
	"github.com/vaani-voice/backend/internal/livekit"
	"github.com/vaani-voice/backend/pkg/livedemo"
)

var (
	serverURL string
	env       = loadEnv()
)

var rootCmd = &cobra.Command{
	Use:           "voicedemo",
	Short:         "Talk to the Vaani site backend from a terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("VAANI_SERVER", "http://localhost:8080"), "site backend base URL")
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newContactCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newAgentCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voicedemo: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv reads the same .env the server uses so the agent can sign with its keys.
func loadEnv() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return &config.Config{Assistant: config.AssistantConfig{Name: livedemo.DefaultAssistantName}}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func apiURL(path string) string {
	return strings.TrimRight(serverURL, "/") + path
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check GET /api/health",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, apiURL("/api/health"), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			defer resp.Body.Close()
			var body struct {
				Status    string `json:"status"`
				Timestamp string `json:"timestamp"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode health: %w", err)
			}
			if resp.StatusCode != http.StatusOK || body.Status != "ok" {
				return fmt.Errorf("unhealthy: status %d %q", resp.StatusCode, body.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", body.Status, body.Timestamp)
			return nil
		},
	}
}

func newContactCmd() *cobra.Command {
	var name, email, company, message string

	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Submit the contact form (POST /api/contact)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]interface{}{"name": name, "email": email, "companyName": company}
			if cmd.Flags().Changed("message") {
				in["message"] = message
			}
			payload, err := json.Marshal(in)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, apiURL("/api/contact"), bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("contact: %w", err)
			}
			defer resp.Body.Close()
			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			if resp.StatusCode == http.StatusCreated {
				var lead struct {
					ID        int64  `json:"id"`
					CreatedAt string `json:"createdAt"`
				}
				if err := json.Unmarshal(raw, &lead); err != nil {
					return fmt.Errorf("decode lead: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "lead %d created at %s\n", lead.ID, lead.CreatedAt)
				return nil
			}
			var fail struct {
				Message string `json:"message"`
				Field   string `json:"field"`
			}
			if json.Unmarshal(raw, &fail) == nil && fail.Message != "" {
				if fail.Field != "" {
					return fmt.Errorf("%s: %s", fail.Field, fail.Message)
				}
				return errors.New(fail.Message)
			}
			return fmt.Errorf("contact: status %d", resp.StatusCode)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "your name")
	flags.StringVar(&email, "email", "", "email address")
	flags.StringVar(&company, "company", "", "company name")
	flags.StringVar(&message, "message", "", "optional message")
	return cmd
}

func newConnectCmd() *cobra.Command {
	var (
		say       string
		duration  time.Duration
		muted     bool
		verbose   bool
		assistant string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Start a live demo session and print the conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			if verbose {
				logger, _ = zap.NewDevelopment()
			}
			out := cmd.OutOrStdout()

			boot := livedemo.NewBootstrapper(livedemo.NewHTTPFetcher(serverURL, nil), logger)
			session := livedemo.NewSession(boot, livedemo.NewWSTransport(logger), logger,
				livedemo.WithAssistantName(assistant))

			connected := make(chan struct{})
			ended := make(chan struct{})
			var once, endOnce sync.Once
			var printed sync.Mutex
			var shown int
			session.OnChange(func(s livedemo.Snapshot) {
				switch s.State {
				case livedemo.Connected:
					once.Do(func() {
						fmt.Fprintf(out, "[%s] connected\n", s.ElapsedLabel())
						if m := session.Merger(); m != nil {
							m.OnGrow(func(v livedemo.View) {
								printed.Lock()
								defer printed.Unlock()
								for ; shown < len(v.Entries); shown++ {
									e := v.Entries[shown]
									fmt.Fprintf(out, "%s %-5s %s\n", e.Timestamp.Format("15:04:05"), e.Speaker, e.Text)
								}
							})
						}
						close(connected)
					})
				case livedemo.Disconnected, livedemo.Error:
					endOnce.Do(func() {
						if s.Err != nil {
							fmt.Fprintf(out, "session ended: %s (%v)\n", s.State, s.Err)
						} else {
							fmt.Fprintf(out, "session ended: %s\n", s.State)
						}
						close(ended)
					})
				}
			})

			if muted {
				_ = session.SetMuted(true)
			}
			if err := session.Start(cmd.Context()); err != nil {
				if msg := boot.Snapshot().Message; msg != "" {
					return errors.New(msg)
				}
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case <-connected:
			case <-ended:
				return errors.New("could not connect")
			case <-ctx.Done():
				_ = session.HangUp()
				return nil
			}
			if m := session.Merger(); m != nil && m.View().Empty {
				p := m.View().Placeholder
				fmt.Fprintf(out, "%s %s\n", p.Title, p.Subtitle)
			}
			if say != "" {
				if err := session.SendChat(ctx, say); err != nil {
					return err
				}
			}

			var timeout <-chan time.Time
			if duration > 0 {
				timeout = time.After(duration)
			}
			select {
			case <-ended:
			case <-timeout:
				_ = session.HangUp()
			case <-ctx.Done():
				_ = session.HangUp()
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&say, "say", "", "chat message to send once connected")
	flags.DurationVar(&duration, "duration", 0, "hang up after this long (0 waits for Ctrl-C)")
	flags.BoolVar(&muted, "muted", false, "join with the microphone muted")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log transport activity")
	flags.StringVar(&assistant, "assistant", env.Assistant.Name, "agent name used to label transcript lines")
	return cmd
}

func newAgentCmd() *cobra.Command {
	var (
		room     string
		apiKey   string
		secret   string
		name     string
		relayURL string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Join a demo room as a stand-in voice agent that answers chat with transcription",
		RunE: func(cmd *cobra.Command, args []string) error {
			if room == "" || apiKey == "" || secret == "" {
				return errors.New("--room, --api-key and --api-secret are required")
			}
			claims := livekit.NewAgentClaims(apiKey, "agent-"+name, name, room, time.Now(), time.Hour)
			token, err := livekit.NewHMACSigner(secret).Sign(claims)
			if err != nil {
				return fmt.Errorf("sign agent token: %w", err)
			}
			if relayURL == "" {
				relayURL = serverURL
			}

			out := cmd.OutOrStdout()
			transport := livedemo.NewWSTransport(nil)
			sink := &echoAgent{out: out, transport: transport, ended: make(chan struct{})}
			cred := livedemo.Credential{ServerURL: relayURL, Token: token, ParticipantName: claims.Identity(), RoomName: room}
			if err := transport.Connect(cmd.Context(), cred, livedemo.MediaOptions{Audio: true}, sink); err != nil {
				return err
			}
			fmt.Fprintf(out, "agent %s joined %s\n", claims.Identity(), room)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			select {
			case <-ctx.Done():
				return transport.Disconnect()
			case <-sink.ended:
				return nil
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&room, "room", "", "room name from the visitor's credential")
	flags.StringVar(&apiKey, "api-key", env.LiveKit.APIKey, "signing key id")
	flags.StringVar(&secret, "api-secret", env.LiveKit.APISecret, "signing secret")
	flags.StringVar(&name, "name", env.Assistant.Name, "agent display name")
	flags.StringVar(&relayURL, "relay", "", "relay base URL (defaults to --server)")
	return cmd
}

// agentPublisher is the part of *livedemo.WSTransport the echo agent needs.
type agentPublisher interface {
	PublishTranscription(segs []livedemo.TranscriptionSegment) error
}

// echoAgent answers each visitor chat with an interim and then a final
// transcription segment, the way a speech pipeline would.
type echoAgent struct {
	out       io.Writer
	transport agentPublisher
	ended     chan struct{}
	endOnce   sync.Once
	mu        sync.Mutex
	n         int
}

func (a *echoAgent) ConnectionStateChanged(state livedemo.TransportState, err error) {
	if state == livedemo.TransportDisconnected {
		a.endOnce.Do(func() { close(a.ended) })
	}
}

func (a *echoAgent) ChatReceived(msg livedemo.ChatMessage) {
	a.mu.Lock()
	a.n++
	id := fmt.Sprintf("echo-%d", a.n)
	a.mu.Unlock()

	who := "visitor"
	if msg.From != nil {
		who = msg.From.Identity
	}
	fmt.Fprintf(a.out, "%s: %s\n", who, msg.Text)

	reply := EchoReply(msg.Text)
	spoke := time.Now()
	runes := []rune(reply)
	half := string(runes[:len(runes)/2])
	_ = a.transport.PublishTranscription([]livedemo.TranscriptionSegment{{ID: id, Text: half, FirstReceivedTime: spoke}})
	_ = a.transport.PublishTranscription([]livedemo.TranscriptionSegment{{ID: id, Text: reply, Final: true, FirstReceivedTime: spoke}})
}

func (a *echoAgent) TranscriptionReceived([]livedemo.TranscriptionSegment, *livedemo.Participant) {}

// EchoReply is what the stand-in agent says back.
func EchoReply(text string) string {
	return "You said: " + strings.TrimSpace(text)
}
