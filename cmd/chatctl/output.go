package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	senderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

func styleFor(kind notice.Kind) lipgloss.Style {
	switch kind {
	case notice.Success:
		return successStyle
	case notice.Warning:
		return warningStyle
	default:
		return errorStyle
	}
}

// printNotice renders board changes on stderr. Dismissals are silent.
func printNotice(n notice.Notice, shown bool) {
	if !shown {
		return
	}
	fmt.Fprintln(os.Stderr, styleFor(n.Kind).Render(n.Text))
}

func report(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
}

func printChats(chats []domain.Chat) {
	if len(chats) == 0 {
		fmt.Println(dimStyle.Render("No chats yet."))
		return
	}
	fmt.Println(headerStyle.Render("Chats"))
	for _, c := range chats {
		kind := "direct"
		if c.IsGroup {
			kind = "group"
		}
		fmt.Printf("  %4d  %-24s %s\n", c.ID, c.Name, dimStyle.Render(kind))
	}
}

func printMessages(chat domain.Chat, messages []domain.Message) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("#%d %s", chat.ID, chat.Name)))
	if len(messages) == 0 {
		fmt.Println(dimStyle.Render("  No messages yet."))
		return
	}
	for _, m := range messages {
		sender := m.SenderUsername
		if sender == "" {
			sender = fmt.Sprintf("user %d", m.SenderID)
		}
		fmt.Printf("  %s %s %s\n",
			dimStyle.Render(m.CreatedAt.Local().Format("15:04")),
			senderStyle.Render(sender+":"),
			m.Content)
	}
}

func printUsers(users []domain.User) {
	fmt.Println(headerStyle.Render("Users"))
	for _, u := range users {
		status := "active"
		if !u.Active {
			status = "inactive"
		}
		fmt.Printf("  %4d  %-20s %-28s %-5s %s\n", u.ID, u.Username, u.Email, u.Role, dimStyle.Render(status))
	}
}

func printUser(u *domain.User) {
	fmt.Printf("%s (id %d)\n", senderStyle.Render(u.Username), u.ID)
	fmt.Printf("  email: %s\n", u.Email)
	fmt.Printf("  role:  %s\n", strings.ToLower(string(u.Role)))
}
