package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnzeMiles69/pet-chat/internal/api"
	"github.com/AnzeMiles69/pet-chat/internal/config"
	"github.com/AnzeMiles69/pet-chat/internal/guard"
	clog "github.com/AnzeMiles69/pet-chat/internal/log"
	"github.com/AnzeMiles69/pet-chat/internal/metrics"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
	"github.com/AnzeMiles69/pet-chat/internal/repository/store"
	"github.com/AnzeMiles69/pet-chat/internal/service"
	"github.com/AnzeMiles69/pet-chat/internal/session"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type command struct {
	run       func(ctx context.Context, app *app, args []string) error
	protected bool
	location  string
}

var commands = map[string]command{
	"login":       {run: loginCmd},
	"logout":      {run: logoutCmd},
	"register":    {run: registerCmd},
	"whoami":      {run: whoamiCmd, protected: true, location: "/profile"},
	"chats":       {run: chatsCmd, protected: true, location: "/chats"},
	"messages":    {run: messagesCmd, protected: true, location: "/chats"},
	"send":        {run: sendCmd, protected: true, location: "/chats"},
	"create-chat": {run: createChatCmd, protected: true, location: "/chats"},
	"users":       {run: usersCmd, protected: true, location: "/admin"},
	"create-user": {run: createUserCmd, protected: true, location: "/admin"},
	"seed":        {run: seedCmd, protected: true, location: "/admin"},
	"backup":      {run: backupCmd, protected: true, location: "/admin"},
	"restore":     {run: restoreCmd, protected: true, location: "/admin"},
	"reset":       {run: resetCmd, protected: true, location: "/admin"},
}

// errLoginRequired is returned when a protected command runs without a
// stored credential.
var errLoginRequired = errors.New("not logged in: run chatctl login --username=<name>")

func main() {
	os.Exit(run())
}

func run() int {
	metricsAddr := flag.String("metrics-addr", "", "Serve prometheus metrics on this address while the command runs")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		return 1
	}

	name := flag.Arg(0)
	args := flag.Args()[1:]

	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", name)
		printUsage()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		report(err)
		return 1
	}
	defer app.Close()

	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := dispatch(ctx, app, cmd, args); err != nil {
		report(err)
		return 1
	}
	return 0
}

// dispatch runs cmd, sending protected commands through the route guard
// first.
func dispatch(ctx context.Context, app *app, cmd command, args []string) error {
	if cmd.protected {
		decision := app.services.Guard.Enter(cmd.location)
		if decision.State == guard.Redirecting {
			app.board.Show(notice.AreaLogin, notice.Warning, "Please log in first: chatctl login --username=<name>")
			return errLoginRequired
		}
	}
	return cmd.run(ctx, app, args)
}

type app struct {
	cfg      *config.Config
	db       *gorm.DB
	client   *api.Client
	board    *notice.Board
	services *service.Services
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	clog.Init(cfg.Environment)

	db, err := store.NewConnection(cfg.SessionDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	sess, err := session.Open(ctx, store.NewCredentialRepository(db))
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	board := notice.NewBoard()
	board.OnChange(printNotice)

	client := api.New(cfg.APIURL, sess,
		api.WithTimeout(cfg.APITimeout),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithUnauthorizedHook(func() {
			board.Show(notice.AreaLogin, notice.Warning, "Your session has expired. Run chatctl login to continue.")
		}),
	)

	return &app{
		cfg:      cfg,
		db:       db,
		client:   client,
		board:    board,
		services: service.NewServices(client, cfg, board),
	}, nil
}

func (a *app) Close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return srv
}

func printUsage() {
	fmt.Println(`chatctl - command-line client for the chat service

USAGE:
  chatctl [--metrics-addr=:9090] <command> [options]

COMMANDS:
  login        Sign in and remember the credential
  logout       Forget the stored credential
  register     Create a new account
  whoami       Show the signed-in account
  chats        List your chats
  messages     Show the messages of a chat
  send         Send a message to a chat
  create-chat  Create a direct or group chat
  users        List all users (admin)
  create-user  Create an account with a chosen role (admin)
  seed         Create fake users and a group chat with them (admin)
  backup       Download a database backup (admin)
  restore      Replace the database from a backup file (admin)
  reset        Delete all data (admin)
  help         Show this help message

ENVIRONMENT:
  API_URL      Chat service URL (default: http://localhost:8000)
  SESSION_DSN  Where the credential is kept: sqlite path or postgres:// DSN
  BACKUP_DIR   Directory backups are written to (default: .)

EXAMPLES:
  # Sign in as the administrator
  chatctl login --username=admin

  # Start a group chat with users 2 and 3
  chatctl create-chat --group --name=team --users=2,3

  # Send a message to chat 4
  chatctl send --chat=4 --text="hello"

  # Wipe everything without prompting
  chatctl reset --yes`)
}
