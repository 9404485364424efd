package forum

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"forumbump/internal/components/assert"
	"forumbump/internal/components/telemetry"
	"forumbump/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	report_session_login          = "session.login"
	report_session_login_cookie   = "session.login-cookie"
	report_session_is_logged_in   = "session.is-logged-in"
	report_session_current_user   = "session.current-user"
	report_session_resolve_thread = "session.resolve-thread"
	report_session_reply          = "session.reply"
	report_session_logout         = "session.logout"
	report_session_alerts         = "session.alerts"
	report_session_messages       = "session.messages"
)

const DefaultCookieName = "ogusersmybbuser"

// CaptchaSolver solves the reCAPTCHA of the login form.
type CaptchaSolver interface {
	SolveRecaptchaV2(ctx context.Context, pageUrl, siteKey string) (string, error)
}

// Credentials are the ways a Session can authenticate, Cookie takes priority.
type Credentials struct {
	Username string
	Password string
	// TwoFactor is the current 2FA code, it is only sent when set.
	TwoFactor string
	Cookie    string
}

type SessionOptions struct {
	// CookieName is the name of the login cookie, DefaultCookieName by default.
	CookieName string
	// Solver is optional, without one a login form with a CAPTCHA is submitted as is.
	Solver CaptchaSolver
}

// Session is a single logged in identity on the forum.
type Session struct {
	transport  *Transport
	cookieName string
	solver     CaptchaSolver
	tel        telemetry.API

	mu      sync.RWMutex
	state   State
	profile *Profile
}

func NewSession(transport *Transport, opts SessionOptions, tel telemetry.API) *Session {
	assert.NotNil(transport)
	assert.NotNil(tel)

	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &Session{
		transport:  transport,
		cookieName: opts.CookieName,
		solver:     opts.Solver,
		tel:        telemetry.NewScopedAPI("forum_session", tel),
	}
}

// Authenticate logs in with the cookie when one is given, otherwise with the
// username and password. An *InvalidUserError is returned when the session
// does not end up logged in. The profile of the user is cached on success.
func (s *Session) Authenticate(ctx context.Context, creds Credentials) error {
	var ok bool
	var err error
	if creds.Cookie != "" {
		ok, err = s.LoginWithCookie(ctx, creds.Cookie)
	} else {
		ok, err = s.Login(ctx, creds.Username, creds.Password, creds.TwoFactor)
	}
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidUserError{Username: creds.Username}
	}

	_, err = s.CurrentUser(ctx)
	if err != nil {
		s.tel.ReportWarning(report_session_current_user, fmt.Errorf("cache profile: %w", err))
	}
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	if state != StateAuthenticated {
		s.profile = nil
	}
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) ensureNotLoggedOut() error {
	if s.State() == StateLoggedOut {
		return ErrLoggedOut
	}
	return nil
}

func (s *Session) get(ctx context.Context, path string, query map[string]string) (*resty.Response, *goquery.Document, error) {
	res, err := s.transport.Get(ctx, path, query)
	if err != nil {
		return nil, nil, err
	}
	doc, err := parseDocument(res.Body())
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return res, doc, nil
}

// Login submits the login form. Success is judged by the forum redirecting
// to its index page.
func (s *Session) Login(ctx context.Context, username, password, twoFactor string) (bool, error) {
	err := s.ensureNotLoggedOut()
	if err != nil {
		return false, err
	}
	s.tel.ReportDebug("login", username)
	s.setState(StateAuthenticating)

	res, doc, err := s.get(ctx, "member.php", map[string]string{"action": "login"})
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("login page: %w", err))
		s.setState(StateUnauthenticated)
		return false, err
	}
	postKey, err := ExtractHiddenField(doc, "my_post_key")
	if err != nil {
		err = onPage("member.php?action=login", err)
		s.tel.ReportBroken(report_session_login, err)
		s.setState(StateUnauthenticated)
		return false, err
	}

	form := map[string]string{
		"action":      "do_login",
		"my_post_key": postKey,
		"username":    username,
		"password":    password,
	}
	if twoFactor != "" {
		form["2facode"] = twoFactor
	}

	siteKey := ExtractRecaptchaSiteKey(doc)
	if siteKey != "" && s.solver != nil {
		token, err := s.solver.SolveRecaptchaV2(ctx, FinalUrl(res), siteKey)
		if err != nil {
			s.tel.ReportBroken(report_session_login, fmt.Errorf("solve captcha: %w", err))
			s.setState(StateUnauthenticated)
			return false, err
		}
		form["g-recaptcha-response"] = token
	} else if siteKey != "" {
		s.tel.ReportWarning(report_session_login, "the login form has a CAPTCHA but no solver is configured")
	}

	res, err = s.transport.Post(ctx, "member.php", RequestOptions{Form: form})
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("submit login: %w", err))
		s.setState(StateUnauthenticated)
		return false, err
	}

	ok := strings.Contains(FinalUrl(res), "index.php")
	if !ok {
		s.tel.ReportWarning(report_session_login, "login was not accepted", username, FinalUrl(res))
		s.setState(StateUnauthenticated)
		return false, nil
	}
	s.setState(StateAuthenticated)
	s.tel.ReportDebug("logged in", username)
	return true, nil
}

// LoginWithCookie stores the login cookie and probes whether it is valid.
func (s *Session) LoginWithCookie(ctx context.Context, cookie string) (bool, error) {
	err := s.ensureNotLoggedOut()
	if err != nil {
		return false, err
	}
	s.setState(StateAuthenticating)
	s.transport.SetCookie(s.cookieName, cookie)

	ok, err := s.IsLoggedIn(ctx)
	if err != nil {
		s.tel.ReportBroken(report_session_login_cookie, err)
		s.setState(StateUnauthenticated)
		return false, err
	}
	if !ok {
		s.setState(StateUnauthenticated)
		return false, nil
	}
	s.setState(StateAuthenticated)
	return true, nil
}

// IsLoggedIn requests the profile page every time it is called, a non 2xx
// status means the session is not logged in.
func (s *Session) IsLoggedIn(ctx context.Context) (bool, error) {
	res, err := s.transport.Get(ctx, "member.php", map[string]string{"action": "profile"})
	if err != nil {
		s.tel.ReportBroken(report_session_is_logged_in, err)
		return false, err
	}
	ok := res.IsSuccess()
	s.tel.ReportDebug("probed login state", ok)
	return ok, nil
}

// CurrentUser reads the profile of the logged in user and caches it.
func (s *Session) CurrentUser(ctx context.Context) (Profile, error) {
	_, doc, err := s.get(ctx, "member.php", map[string]string{"action": "profile"})
	if err != nil {
		s.tel.ReportBroken(report_session_current_user, err)
		return Profile{}, err
	}
	profile, err := ExtractProfile(doc)
	if err != nil {
		err = onPage("member.php?action=profile", err)
		s.tel.ReportBroken(report_session_current_user, err)
		return Profile{}, err
	}

	s.mu.Lock()
	s.profile = &profile
	s.mu.Unlock()
	return profile, nil
}

// Profile returns the profile cached by the last CurrentUser call.
func (s *Session) Profile() (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

// Cookie returns the current value of the login cookie.
func (s *Session) Cookie() string {
	return s.transport.Cookie(s.cookieName)
}

// ResolveThread turns a thread url (full, scheme-less or just the path) into
// its numeric thread id.
func (s *Session) ResolveThread(ctx context.Context, ref string) (string, error) {
	s.tel.ReportDebug("resolve thread", ref)

	path := s.transport.relativePath(ref)
	_, doc, err := s.get(ctx, path, nil)
	if err != nil {
		s.tel.ReportBroken(report_session_resolve_thread, err, ref)
		return "", err
	}
	tid, err := ExtractReplyThreadID(doc, ref)
	if err != nil {
		s.tel.ReportWarning(report_session_resolve_thread, err)
		return "", err
	}

	s.tel.ReportDebug("resolved thread", ref, tid)
	return tid, nil
}

// Reply posts `message` to the thread with the numeric id `tid`.
func (s *Session) Reply(ctx context.Context, tid, message string) error {
	err := s.ensureNotLoggedOut()
	if err != nil {
		return err
	}
	s.tel.ReportDebug("reply", tid, textutil.Preview(message, 10))

	_, doc, err := s.get(ctx, "newreply.php", map[string]string{"tid": tid})
	if err != nil {
		s.tel.ReportBroken(report_session_reply, fmt.Errorf("reply page: %w", err), tid)
		return err
	}

	fields := map[string]string{}
	for _, name := range []string{"my_post_key", "subject", "posthash"} {
		value, err := ExtractHiddenField(doc, name)
		if err != nil {
			err = onPage("newreply.php?tid="+tid, err)
			s.tel.ReportBroken(report_session_reply, err, tid)
			return err
		}
		fields[name] = value
	}

	res, err := s.transport.Post(ctx, "newreply.php", RequestOptions{Form: map[string]string{
		"my_post_key":            fields["my_post_key"],
		"subject":                fields["subject"],
		"action":                 "do_newreply",
		"posthash":               fields["posthash"],
		"quoted_ids":             "Array",
		"tid":                    tid,
		"message":                message,
		"postoptions[signature]": "1",
	}})
	if err != nil {
		s.tel.ReportBroken(report_session_reply, fmt.Errorf("submit reply: %w", err), tid)
		return err
	}
	if res.IsError() {
		s.tel.ReportWarning(
			report_session_reply,
			fmt.Sprintf("the forum answered the reply with %s, it may not have been posted", res.Status()),
			tid,
		)
	}

	s.tel.ReportDebug("replied", tid)
	return nil
}

// Logout logs the session out of the forum, the session cannot be used afterwards.
func (s *Session) Logout(ctx context.Context) error {
	err := s.ensureNotLoggedOut()
	if err != nil {
		return err
	}

	res, err := s.transport.Get(ctx, "member.php", map[string]string{"action": "logout"})
	if err != nil {
		s.tel.ReportBroken(report_session_logout, err)
		return err
	}
	key, err := ExtractLogoutKey(res.String())
	if err != nil {
		err = onPage("member.php?action=logout", err)
		s.tel.ReportBroken(report_session_logout, err)
		return err
	}

	_, err = s.transport.Post(ctx, "member.php", RequestOptions{Query: map[string]string{
		"action":    "logout",
		"logoutkey": key,
	}})
	if err != nil {
		s.tel.ReportBroken(report_session_logout, fmt.Errorf("submit logout: %w", err))
		return err
	}

	s.setState(StateLoggedOut)
	return nil
}

func (s *Session) Alerts(ctx context.Context) ([]Alert, error) {
	_, doc, err := s.get(ctx, "alerts.php", nil)
	if err != nil {
		s.tel.ReportBroken(report_session_alerts, err)
		return nil, err
	}
	alerts, err := ExtractAlerts(doc)
	if err != nil {
		err = onPage("alerts.php", err)
		s.tel.ReportBroken(report_session_alerts, err)
		return nil, err
	}
	s.tel.ReportDebug("fetched alerts", len(alerts))
	return alerts, nil
}

func (s *Session) Messages(ctx context.Context) ([]Message, error) {
	_, doc, err := s.get(ctx, "private.php", nil)
	if err != nil {
		s.tel.ReportBroken(report_session_messages, err)
		return nil, err
	}
	messages, err := ExtractMessages(doc)
	if err != nil {
		err = onPage("private.php", err)
		s.tel.ReportBroken(report_session_messages, err)
		return nil, err
	}
	s.tel.ReportDebug("fetched messages", len(messages))
	return messages, nil
}

// LastExchange returns the most recent response of the session's transport.
func (s *Session) LastExchange() (Exchange, bool) {
	return s.transport.LastExchange()
}
