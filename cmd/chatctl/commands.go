package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/AnzeMiles69/pet-chat/internal/guard"
	"github.com/AnzeMiles69/pet-chat/internal/service"
)

func loginCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "Account username")
	password := fs.String("password", "", "Account password (prompted when empty)")
	fs.Parse(args)

	if *password == "" {
		p, err := prompt("Password: ")
		if err != nil {
			return err
		}
		*password = p
	}

	if err := app.services.Auth.Login(ctx, service.LoginInput{Username: *username, Password: *password}); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Logged in as " + *username))
	return nil
}

func logoutCmd(ctx context.Context, app *app, args []string) error {
	if err := app.services.Auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func registerCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	username := fs.String("username", "", "Username")
	password := fs.String("password", "", "Password (at least 8 characters)")
	confirm := fs.String("confirm", "", "Password confirmation (defaults to --password)")
	fs.Parse(args)

	if *confirm == "" {
		*confirm = *password
	}

	user, err := app.services.Auth.Register(ctx, service.RegisterInput{
		Email:           *email,
		Username:        *username,
		Password:        *password,
		ConfirmPassword: *confirm,
	})
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Account %s created. Run chatctl login to sign in.", user.Username)))
	return nil
}

func whoamiCmd(ctx context.Context, app *app, args []string) error {
	user, err := app.services.Auth.CurrentUser(ctx)
	if err != nil {
		return err
	}
	printUser(user)
	return nil
}

func chatsCmd(ctx context.Context, app *app, args []string) error {
	if err := app.services.Chats.LoadChats(ctx); err != nil {
		return err
	}
	printChats(app.services.Chats.Chats())
	return nil
}

func messagesCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	chatID := fs.Int64("chat", 0, "Chat ID")
	fs.Parse(args)

	chat, err := selectChat(ctx, app, *chatID)
	if err != nil {
		return err
	}
	printMessages(chat, app.services.Chats.Messages())
	return nil
}

func sendCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	chatID := fs.Int64("chat", 0, "Chat ID")
	text := fs.String("text", "", "Message text (remaining arguments are used when empty)")
	fs.Parse(args)

	if *text == "" {
		*text = strings.Join(fs.Args(), " ")
	}

	chat, err := selectChat(ctx, app, *chatID)
	if err != nil {
		return err
	}

	app.services.Chats.SetCompose(*text)
	if err := app.services.Chats.SendCompose(ctx); err != nil {
		return err
	}
	printMessages(chat, app.services.Chats.Messages())
	return nil
}

// selectChat loads the chat list and opens chatID from it.
func selectChat(ctx context.Context, app *app, chatID int64) (domain.Chat, error) {
	if chatID == 0 {
		return domain.Chat{}, errors.New("--chat is required")
	}
	if err := app.services.Chats.LoadChats(ctx); err != nil {
		return domain.Chat{}, err
	}
	for _, c := range app.services.Chats.Chats() {
		if c.ID == chatID {
			return c, app.services.Chats.SelectChat(ctx, c)
		}
	}
	return domain.Chat{}, fmt.Errorf("chat %d not found", chatID)
}

func createChatCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("create-chat", flag.ExitOnError)
	name := fs.String("name", "", "Chat name (required for groups)")
	group := fs.Bool("group", false, "Create a group chat instead of a direct chat")
	users := fs.String("users", "", "Comma-separated user IDs to add")
	fs.Parse(args)

	ids, err := parseIDs(*users)
	if err != nil {
		return err
	}

	result, err := app.services.Chats.CreateChat(ctx, service.CreateChatInput{
		Name:           *name,
		IsGroup:        *group,
		ParticipantIDs: ids,
	})
	if err != nil {
		return err
	}

	if !result.Partial() {
		fmt.Println(successStyle.Render(fmt.Sprintf("Created chat %d with %d participant(s)", result.Chat.ID, len(ids))))
	}
	printChats(app.services.Chats.Chats())
	return nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// authorizeAdmin opens the admin console. A denied caller sees the reason,
// waits out the redirect delay and is pointed at the redirect target.
func authorizeAdmin(ctx context.Context, app *app) error {
	decision, err := app.services.Admin.Authorize(ctx)
	if err != nil {
		return err
	}
	if decision.Allowed {
		return nil
	}

	to, err := decision.AwaitRedirect(ctx)
	if err != nil {
		return err
	}
	if to == guard.LoginPath {
		return errors.New("not logged in: run chatctl login")
	}
	return fmt.Errorf("%w: returning to %s", domain.ErrForbidden, to)
}

func usersCmd(ctx context.Context, app *app, args []string) error {
	if err := authorizeAdmin(ctx, app); err != nil {
		return err
	}
	users, err := app.services.Admin.ListUsers(ctx)
	if err != nil {
		return err
	}
	printUsers(users)
	return nil
}

func createUserCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	username := fs.String("username", "", "Username")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (at least 8 characters)")
	role := fs.String("role", string(domain.RoleUser), "Role: USER or ADMIN")
	fs.Parse(args)

	if err := authorizeAdmin(ctx, app); err != nil {
		return err
	}

	closed := make(chan struct{})
	_, err := app.services.Admin.CreateUser(ctx, service.CreateUserInput{
		Username: *username,
		Email:    *email,
		Password: *password,
		Role:     domain.Role(strings.ToUpper(*role)),
	}, func() { close(closed) })
	if err != nil {
		return err
	}

	select {
	case <-closed:
	case <-ctx.Done():
	}
	printUsers(app.services.Admin.Users())
	return nil
}

func seedCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	count := fs.Int("count", 5, "Number of fake users to create")
	prefix := fs.String("prefix", "player", "Username prefix")
	password := fs.String("password", "password123", "Password for every fake user")
	chatName := fs.String("chat", "general", "Name of the group chat to create with them")
	fs.Parse(args)

	if *count < 1 || *count > 100 {
		return errors.New("--count must be between 1 and 100")
	}
	if err := authorizeAdmin(ctx, app); err != nil {
		return err
	}

	fmt.Printf("Adding %d users:\n", *count)
	ids := make([]int64, 0, *count)
	for i := 1; i <= *count; i++ {
		username := fmt.Sprintf("%s%d", *prefix, i)
		user, err := app.services.Admin.CreateUser(ctx, service.CreateUserInput{
			Username: username,
			Email:    username + "@example.com",
			Password: *password,
		}, nil)
		if err != nil {
			fmt.Printf("  [%d/%d] FAILED to create %s: %v\n", i, *count, username, err)
			continue
		}
		ids = append(ids, user.ID)
		fmt.Printf("  [%d/%d] %s created\n", i, *count, user.Username)
	}
	if len(ids) == 0 {
		return errors.New("no users were created")
	}

	result, err := app.services.Chats.CreateChat(ctx, service.CreateChatInput{
		Name:           *chatName,
		IsGroup:        true,
		ParticipantIDs: ids,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Chat %d (%s) created with %d of %d users\n",
		result.Chat.ID, result.Chat.Name, len(ids)-len(result.Failed()), len(ids))
	return nil
}

func backupCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	dir := fs.String("dir", "", "Directory to save the backup in (default: BACKUP_DIR)")
	fs.Parse(args)

	if err := authorizeAdmin(ctx, app); err != nil {
		return err
	}
	if *dir != "" {
		app.services.Admin.SetSaver(service.DirSaver{Dir: *dir})
	}

	_, err := app.services.Admin.CreateBackup(ctx)
	return err
}

func restoreCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	file := fs.String("file", "", "Backup file to upload")
	fs.Parse(args)

	if *file == "" {
		return errors.New("--file is required")
	}
	if err := authorizeAdmin(ctx, app); err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	return app.services.Admin.RestoreBackup(ctx, filepath.Base(*file), f)
}

func resetCmd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args)

	if err := authorizeAdmin(ctx, app); err != nil {
		return err
	}

	var confirm service.Confirmer = service.ConfirmFunc(stdinConfirm)
	if *yes {
		confirm = service.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
	}

	err := app.services.Admin.ResetDatabase(ctx, confirm)
	if errors.Is(err, service.ErrNotConfirmed) {
		fmt.Println("Reset cancelled")
		return nil
	}
	return err
}

// stdinConfirm accepts only an explicit "yes".
func stdinConfirm(ctx context.Context, question string) (bool, error) {
	answer, err := prompt(warningStyle.Render(question) + " Type yes to confirm: ")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "yes"), nil
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
