package guard

import (
	clog "github.com/AnzeMiles69/pet-chat/internal/log"
	"github.com/AnzeMiles69/pet-chat/internal/session"
)

type State int

const (
	Allowed State = iota
	Redirecting
)

func (s State) String() string {
	switch s {
	case Allowed:
		return "allowed"
	case Redirecting:
		return "redirecting"
	default:
		return "unknown"
	}
}

const (
	LoginPath   = "/login"
	DefaultHome = "/chats"
)

// Decision is the outcome of entering a protected view.
type Decision struct {
	State State
	// RedirectTo is set when State is Redirecting.
	RedirectTo string
	// ResumeFrom is the location originally requested, carried to the login
	// view so it can send the user back after signing in.
	ResumeFrom string
}

// Guard decides whether a protected view may render. It checks presence of
// a credential only; role checks belong to the individual views.
type Guard struct {
	session *session.Store
}

func New(sess *session.Store) *Guard {
	return &Guard{session: sess}
}

func (g *Guard) Enter(location string) Decision {
	if !g.session.IsAuthenticated() {
		logger := clog.Component("guard")
		logger.Debug().Str("location", location).Msg("no credential, redirecting to login")
		return Decision{
			State:      Redirecting,
			RedirectTo: LoginPath,
			ResumeFrom: location,
		}
	}
	return Decision{State: Allowed}
}

// Resume returns where to go after a successful login: the captured location,
// or fallback when there is none.
func Resume(d Decision, fallback string) string {
	if d.ResumeFrom != "" && d.ResumeFrom != LoginPath {
		return d.ResumeFrom
	}
	return fallback
}
