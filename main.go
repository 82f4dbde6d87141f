package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "Terminal client for the room chat service",
	RunE:  runClient,
}

var (
	flagServerURL string
	flagRoom      int
	flagUsername  string
	flagPassword  string
	flagDataPath  string
	flagBacklog   int
	flagVerbose   bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server-url", envOr("CHAT_SERVER", "http://localhost:8000"), "chat service base URL (from env CHAT_SERVER if set)")
	flags.IntVar(&flagRoom, "room", 1, "chat room id to join")
	flags.StringVar(&flagUsername, "username", "", "username to login or register with")
	flags.StringVar(&flagPassword, "password", os.Getenv("CHAT_PASSWORD"), "password (from env CHAT_PASSWORD if set)")
	flags.StringVar(&flagDataPath, "data-path", "", "optional directory to persist the room transcript via PebbleDB")
	flags.IntVar(&flagBacklog, "backlog", 50, "persisted messages to replay on startup")
	flags.BoolVar(&flagVerbose, "verbose", false, "debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("username")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute roomchat command")
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := newTermView(os.Stdout)

	// Optional: open persistent transcript and replay the tail
	var store *transcriptStore
	if flagDataPath != "" {
		s, err := openTranscriptStore(flagDataPath)
		if err != nil {
			log.Warn().Err(err).Msg("[chat] open transcript failed; running without persistence")
		} else {
			store = s
			if msgs, err := store.LoadRecent(flagRoom, flagBacklog); err != nil {
				log.Warn().Err(err).Msg("[chat] load transcript failed")
			} else {
				view.Replay(msgs)
			}
		}
	}

	ctrl := NewController(ControllerConfig{
		ServerURL: flagServerURL,
		RoomID:    flagRoom,
		Username:  flagUsername,
		Password:  flagPassword,
		Store:     store,
	}, view)

	if err := ctrl.Run(ctx); err != nil {
		if store != nil {
			_ = store.Close()
		}
		return err
	}

	go readCommands(ctx, ctrl, stop)

	select {
	case <-ctx.Done():
	case <-ctrl.ChannelDone():
		// Degraded: the channel is gone but nothing reconnects. Stay up so
		// the user sees the transcript until they quit.
		log.Warn().Msg("[chat] channel closed; no further messages will be delivered")
		<-ctx.Done()
	}

	ctrl.Close()
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("[chat] transcript close error")
		}
	}
	log.Info().Msg("[chat] shutdown complete")
	return nil
}

// readCommands runs the interactive loop. Plain lines are chat messages;
// /react <id> <emoji> reacts, /upload <path> shares a file, /quit exits.
func readCommands(ctx context.Context, ctrl *Controller, stop func()) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			stop()
			return
		case strings.HasPrefix(line, "/react "):
			parts := strings.Fields(line)
			if len(parts) != 3 {
				fmt.Fprintln(os.Stderr, "usage: /react <message-id> <emoji>")
				continue
			}
			id, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, "usage: /react <message-id> <emoji>")
				continue
			}
			ctrl.SendReaction(id, parts[2])
		case strings.HasPrefix(line, "/upload "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/upload "))
			f, err := os.Open(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, "upload:", err)
				continue
			}
			err = ctrl.ShareFile(ctx, filepath.Base(path), f)
			_ = f.Close()
			if err != nil {
				log.Debug().Err(err).Msg("[chat] share file")
			}
		default:
			// A terminal only hands us whole lines, so the per-keystroke
			// typing signal collapses to one event per outbound message.
			ctrl.SendTyping()
			ctrl.SendChat(line)
		}
	}
	stop()
}
