package forum

// Profile is the logged in user as shown on their profile page.
type Profile struct {
	Name       string `json:"name"`
	Uid        string `json:"uid"`
	AvatarUrl  string `json:"avatar"`
	Credits    string `json:"credits"`
	Reputation string `json:"reputation"`
	Vouches    string `json:"vouches"`
}

type Alert struct {
	Id string `json:"id"`
	// User is the link to the profile of the user who caused the alert.
	User string `json:"user"`
	Info string `json:"info"`
	Time string `json:"time"`
}

// Message is a row of the private message inbox.
type Message struct {
	Id     string `json:"id"`
	User   string `json:"user"`
	Title  string `json:"title"`
	Time   string `json:"time"`
	Unread bool   `json:"unread"`
}

// Exchange is the summary of a single response from the forum.
type Exchange struct {
	Method string `json:"method"`
	Url    string `json:"url"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// State is the lifecycle of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	// StateLoggedOut is terminal.
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateLoggedOut:
		return "logged out"
	}
	return "unknown"
}
