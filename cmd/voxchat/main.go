package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"voxchat/internal/config"
	"voxchat/internal/database"
	apperrors "voxchat/internal/errors"
	"voxchat/internal/models"
	"voxchat/internal/retry"
	"voxchat/internal/session"
	"voxchat/internal/tracing"
	"voxchat/pkg/api"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
	configPath     = flag.String("config", "config.json", "Path to configuration file")
	conversationID = flag.Int64("conversation", 0, "Conversation to open")
	username       = flag.String("username", "", "Username for login when no stored session exists")
	logout         = flag.Bool("logout", false, "Clear stored credentials and exit")
	version        = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("voxchat %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	logger.WithField("version", Version).Info("Starting voxchat")

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer db.Close()

	if *logout {
		if err := db.ClearCredentials(ctx); err != nil {
			return fmt.Errorf("failed to clear credentials: %w", err)
		}
		logger.Info("Stored credentials cleared")
		return nil
	}

	client := api.NewClientWithLogger(cfg.Server.BaseURL,
		&http.Client{Timeout: time.Duration(cfg.Server.HTTPTimeoutSec) * time.Second}, logger)

	identity, err := authenticate(ctx, client, db, logger)
	if err != nil {
		return err
	}

	if *conversationID == 0 {
		return listConversations(ctx, client)
	}

	if cfg.Debug.Enabled {
		debug := newDebugServer(cfg.Debug.Addr, logger)
		debug.Start()
		defer debug.Shutdown(context.Background())
	}

	sess := session.New(session.Options{
		ConversationID:       *conversationID,
		Identity:             *identity,
		Client:               client,
		Logger:               logger,
		HeartbeatInterval:    time.Duration(cfg.Stream.HeartbeatIntervalSec) * time.Second,
		TypingIdle:           time.Duration(cfg.Typing.IdleTimeoutMs) * time.Millisecond,
		AudioPollAttempts:    cfg.Audio.LoadPollAttempts,
		AudioPollInterval:    time.Duration(cfg.Audio.LoadPollIntervalMs) * time.Millisecond,
		AudioDownloadTimeout: time.Duration(cfg.Audio.DownloadTimeoutSec) * time.Second,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Duration(cfg.Stream.ReconnectInitialMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Stream.ReconnectMaxMs) * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  cfg.Stream.MaxReconnectAttempts,
		},
	})
	defer sess.Close()

	if err := sess.Open(ctx); err != nil {
		if apperrors.IsTerminalAuth(err) {
			_ = db.ClearCredentials(ctx)
			return fmt.Errorf("session expired, stored credentials cleared: %w", err)
		}
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	printHistory(sess, identity.UserID)
	go renderUpdates(ctx, sess, identity.UserID)

	return composerLoop(ctx, sess, client, *conversationID)
}

// authenticate reuses the stored session or logs in with the -username flag
// and the VOXCHAT_PASSWORD environment variable.
func authenticate(ctx context.Context, client api.Client, db *database.Database, logger *logrus.Logger) (*session.Identity, error) {
	creds, err := db.LoadCredentials(ctx)
	if err == nil {
		client.SetToken(creds.Token)
		logger.WithField("username", creds.Username).Info("Using stored session")
		return &session.Identity{UserID: creds.UserID, Username: creds.Username, Token: creds.Token}, nil
	}
	if !errors.Is(err, database.ErrNoCredentials) {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	password := os.Getenv("VOXCHAT_PASSWORD")
	if *username == "" || password == "" {
		return nil, fmt.Errorf("no stored session: pass -username and set VOXCHAT_PASSWORD to log in")
	}

	resp, err := client.Login(ctx, *username, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if err := db.SaveCredentials(ctx, &models.Credentials{
		Token:    resp.AccessToken,
		UserID:   resp.UserID,
		Username: resp.Username,
	}); err != nil {
		logger.WithError(err).Warn("Could not persist credentials")
	}

	return &session.Identity{UserID: resp.UserID, Username: resp.Username, Token: resp.AccessToken}, nil
}

func listConversations(ctx context.Context, client api.Client) error {
	conversations, err := client.GetConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations. Create one on the server, then pass -conversation <id>.")
		return nil
	}

	fmt.Println("Conversations:")
	for _, c := range conversations {
		fmt.Printf("  %d  %s\n", c.ID, c.Name)
	}
	fmt.Println("Open one with -conversation <id>.")
	return nil
}

func printHistory(sess *session.Session, selfID int64) {
	for _, msg := range sess.Messages() {
		printMessage(&msg, selfID)
	}
}

func renderUpdates(ctx context.Context, sess *session.Session, selfID int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-sess.Updates():
			switch update.Kind {
			case session.UpdateMessage:
				printMessage(update.Message, selfID)
			case session.UpdateTyping:
				if len(update.TypingUsers) > 0 {
					fmt.Printf("-- %s typing...\n", strings.Join(update.TypingUsers, ", "))
				}
			case session.UpdateConnection:
				if update.Connected {
					fmt.Println("-- connected")
				} else {
					fmt.Println("-- disconnected")
				}
			case session.UpdateParticipants:
				fmt.Printf("-- participants: %d\n", len(sess.Participants()))
			case session.UpdateNotice:
				fmt.Printf("!! %s\n", apperrors.GetUserMessage(update.Err))
				if update.ComposerText != "" {
					fmt.Printf("   draft restored: %s\n", update.ComposerText)
				}
			}
		}
	}
}

func printMessage(msg *models.Message, selfID int64) {
	if msg == nil {
		return
	}

	who := fmt.Sprintf("user %d", msg.SenderID)
	if msg.Sender != nil {
		who = msg.Sender.Username
	}
	if msg.SenderID == selfID {
		who = "you"
	}

	marker := ""
	if msg.IsTemporary {
		marker = " (sending)"
	}

	switch msg.ContentType {
	case models.AudioMessage:
		fmt.Printf("[%d] %s: <audio>%s  (/play %d)\n", msg.ID, who, marker, msg.ID)
	default:
		body := msg.Content
		if msg.TranslatedContent != "" {
			body = msg.TranslatedContent
		}
		fmt.Printf("[%d] %s: %s%s\n", msg.ID, who, body, marker)
	}
}

// composerLoop reads stdin lines as the message composer. Slash commands
// drive playback and translation; everything else sends as text.
func composerLoop(ctx context.Context, sess *session.Session, client api.Client, conversationID int64) error {
	fmt.Println("Type a message and press enter. Commands: /play <id>, /translate <id>, /sendaudio <file>, /refaudio <file>, /add <username>, /participants, /quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, sess, client, conversationID, line); done {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, sess *session.Session, client api.Client, conversationID int64, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	if strings.HasPrefix(trimmed, "/") {
		fields := strings.Fields(trimmed)
		switch fields[0] {
		case "/quit":
			return true
		case "/participants":
			for _, p := range sess.Participants() {
				fmt.Printf("  %s\n", p.User.Username)
			}
		case "/play":
			if id, ok := parseIDArg(fields); ok {
				if err := sess.PlayAudio(ctx, id); err != nil {
					fmt.Printf("!! %s\n", apperrors.GetUserMessage(err))
				}
			}
		case "/playtr":
			if id, ok := parseIDArg(fields); ok {
				if err := sess.PlayTranslatedAudio(ctx, id); err != nil {
					fmt.Printf("!! %s\n", apperrors.GetUserMessage(err))
				}
			}
		case "/translate":
			if id, ok := parseIDArg(fields); ok {
				_ = sess.ToggleTranslation(ctx, id)
			}
		case "/sendaudio":
			if name, data, ok := readAudioArg(fields); ok {
				if err := sess.SendAudio(ctx, name, data); err != nil {
					fmt.Printf("!! %s\n", apperrors.GetUserMessage(err))
				}
			}
		case "/refaudio":
			if name, data, ok := readAudioArg(fields); ok {
				if err := client.UploadReferenceAudio(ctx, name, bytes.NewReader(data)); err != nil {
					fmt.Printf("!! %s\n", apperrors.GetUserMessage(err))
				} else {
					fmt.Println("-- reference audio uploaded")
				}
			}
		case "/add":
			if len(fields) < 2 {
				fmt.Println("usage: /add <username>")
				break
			}
			if err := addParticipant(ctx, client, conversationID, fields[1]); err != nil {
				fmt.Printf("!! %s\n", apperrors.GetUserMessage(err))
			}
		default:
			fmt.Printf("unknown command %s\n", fields[0])
		}
		return false
	}

	sess.Keystroke()
	if err := sess.SendText(ctx, trimmed); err != nil && apperrors.IsTerminalAuth(err) {
		fmt.Println("!! Session expired. Restart and log in again.")
		return true
	}
	return false
}

// addParticipant looks the username up and adds the match to the open
// conversation. The participant list refreshes through the stream event.
func addParticipant(ctx context.Context, client api.Client, conversationID int64, username string) error {
	user, err := client.SearchUser(ctx, username)
	if err != nil {
		return err
	}
	if err := client.AddParticipant(ctx, conversationID, user.ID); err != nil {
		return err
	}
	fmt.Printf("-- added %s\n", user.Username)
	return nil
}

func readAudioArg(fields []string) (string, []byte, bool) {
	if len(fields) < 2 {
		fmt.Println("usage: " + fields[0] + " <audio file>")
		return "", nil, false
	}
	data, err := os.ReadFile(fields[1])
	if err != nil {
		fmt.Printf("cannot read %s: %v\n", fields[1], err)
		return "", nil, false
	}
	return filepath.Base(fields[1]), data, true
}

func parseIDArg(fields []string) (int64, bool) {
	if len(fields) < 2 {
		fmt.Println("usage: " + fields[0] + " <message id>")
		return 0, false
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Println("invalid message id")
		return 0, false
	}
	return id, true
}
