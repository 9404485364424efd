package forum

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"forumbump/internal/components/chrono/chronotest"
	"forumbump/internal/components/telemetry/telemetrytest"

	"github.com/stretchr/testify/require"
)

const (
	fakeUsername = "bumpy"
	fakePassword = "hunter2"
	fakeCookie   = "1_abcdef"
	fakeSiteKey  = "6Lc-sitekey"
)

const loginPage = `<html><head><title>Login</title></head><body>
<form action="member.php" method="post">
<input type="hidden" name="my_post_key" value="postkey-1" />
<input type="text" name="username" />
<input type="password" name="password" />
%s
</form>
</body></html>`

const profilePage = `<html><head><title>bumpy | OGUsers</title></head><body>
<div id="header"><a href="https://ogusers.com/credits.php">Credits</a></div>
<a id="profileLink" href="member.php?action=profile&amp;uid=1337">1337</a>
<div class="profile_avatar"><img src="https://ogusers.com/uploads/avatars/avatar_1337.png" /></div>
<table><tr><td>Credits:</td><td><a href="https://ogusers.com/credits.php">250</a></td></tr></table>
<strong class="reputation_positive">42</strong>
<strong class="reputation_neutral">7</strong>
</body></html>`

const logoutPage = `<html><body>
<a href="member.php?action=logout&amp;logoutkey=f00dfeed">Log Out</a>
</body></html>`

const replyPage = `<html><body>
<form action="newreply.php" method="post">
<input type="hidden" name="my_post_key" value="postkey-2" />
<input type="text" name="subject" value="RE: Selling stuff" />
<input type="hidden" name="posthash" value="hash-%s" />
<textarea name="message"></textarea>
</form>
</body></html>`

const threadPage = `<html><body>
<div class="newrepliesbutton"><a href="newreply.php?tid=4242">Reply</a></div>
</body></html>`

const notThreadPage = `<html><body><p>The specified thread does not exist.</p></body></html>`

const alertsPage = `<html><body><table>
<tbody id="latestAlertsListing">
<tr id="alert_row_15">
<td><a href="https://ogusers.com/bob"><img src="bob.png" /></a></td>
<td><a href="showthread.php?pid=1">bob replied to <b>Selling stuff</b><br />2 hours ago</a></td>
</tr>
<tr id="alert_row_14">
<td><a href="https://ogusers.com/carol"><img src="carol.png" /></a></td>
<td><a href="showthread.php?pid=2">carol quoted you<br />Yesterday</a></td>
</tr>
</tbody>
</table></body></html>`

const messagesPage = `<html><body><table>
<tr><td colspan="5">Inbox</td></tr>
<tr><td>Message</td><td>Sender</td><td>Date</td></tr>
<tr>
<td class="trow1_pm"><img src="new.png" /></td>
<td class="trow1_pm"><a class="new_pm" href="private.php?action=read&amp;pmid=77">Offer</a></td>
<td class="trow2_pm"></td>
<td class="trow2_pm">alice</td>
<td class="time_sent"><span>Today, 10:00 AM</span></td>
</tr>
<tr>
<td class="trow1_pm"><img src="old.png" /></td>
<td class="trow1_pm"><a class="old_pm" href="private.php?action=read&amp;pmid=76">Hello</a></td>
<td class="trow2_pm"></td>
<td class="trow2_pm">dave</td>
<td class="time_sent"><span>03-01-2020</span></td>
</tr>
<tr><td colspan="5">Pages (1)</td></tr>
</table></body></html>`

// fakeForum serves just enough of the forum's pages to drive a Session.
type fakeForum struct {
	server  *httptest.Server
	captcha bool

	mu         sync.Mutex
	probes     int
	replies    []url.Values
	logins     []url.Values
	loggedOut  bool
	logoutKeys []string
	// replyStatus is written instead of the redirect after a reply, when set.
	replyStatus int
}

func newFakeForum(t *testing.T) *fakeForum {
	f := &fakeForum{}
	mux := http.NewServeMux()
	mux.HandleFunc("/member.php", f.member)
	mux.HandleFunc("/index.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Welcome back</body></html>")
	})
	mux.HandleFunc("/newreply.php", f.newReply)
	mux.HandleFunc("/Thread-selling-stuff", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, threadPage)
	})
	mux.HandleFunc("/Thread-gone", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, notThreadPage)
	})
	mux.HandleFunc("/alerts.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, alertsPage)
	})
	mux.HandleFunc("/private.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, messagesPage)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeForum) authorized(r *http.Request) bool {
	c, err := r.Cookie(DefaultCookieName)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return c.Value == fakeCookie && !f.loggedOut
}

func (f *fakeForum) member(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if r.Method == http.MethodPost {
		err := r.ParseForm()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("action") == "do_login" {
			f.doLogin(w, r)
			return
		}
		if action == "logout" {
			f.mu.Lock()
			f.loggedOut = true
			f.logoutKeys = append(f.logoutKeys, r.URL.Query().Get("logoutkey"))
			f.mu.Unlock()
			http.Redirect(w, r, "/index.php", http.StatusFound)
			return
		}
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	switch action {
	case "login":
		captcha := ""
		if f.captcha {
			captcha = fmt.Sprintf(`<div class="g-recaptcha" data-sitekey="%s"></div>`, fakeSiteKey)
		}
		fmt.Fprintf(w, loginPage, captcha)
	case "profile":
		f.mu.Lock()
		f.probes++
		f.mu.Unlock()
		if !f.authorized(r) {
			http.Error(w, "You are not logged in", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, profilePage)
	case "logout":
		fmt.Fprint(w, logoutPage)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeForum) doLogin(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.logins = append(f.logins, r.PostForm)
	f.mu.Unlock()

	if r.PostForm.Get("my_post_key") != "postkey-1" ||
		r.PostForm.Get("username") != fakeUsername ||
		r.PostForm.Get("password") != fakePassword {
		fmt.Fprint(w, "<html><body>Please correct the following errors</body></html>")
		return
	}
	if f.captcha && r.PostForm.Get("g-recaptcha-response") == "" {
		fmt.Fprint(w, "<html><body>Please complete the CAPTCHA</body></html>")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: DefaultCookieName, Value: fakeCookie, Path: "/"})
	http.Redirect(w, r, "/index.php", http.StatusFound)
}

func (f *fakeForum) newReply(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		http.Error(w, "not logged in", http.StatusForbidden)
		return
	}
	if r.Method == http.MethodGet {
		fmt.Fprintf(w, replyPage, r.URL.Query().Get("tid"))
		return
	}
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.replies = append(f.replies, r.PostForm)
	status := f.replyStatus
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	http.Redirect(w, r, "/showthread.php?tid="+r.PostForm.Get("tid"), http.StatusFound)
}

func (f *fakeForum) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func newTestTransport(t *testing.T, baseUrl string, sleeper *chronotest.Sleeper, opts TransportOptions) *Transport {
	opts.BaseUrl = baseUrl
	opts.Sleep = sleeper
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	transport, err := NewTransport(opts, &telemetrytest.Recorder{})
	require.NoError(t, err)
	return transport
}

func newTestSession(t *testing.T, f *fakeForum, opts SessionOptions) *Session {
	transport := newTestTransport(t, f.server.URL+"/", &chronotest.Sleeper{}, TransportOptions{})
	return NewSession(transport, opts, &telemetrytest.Recorder{})
}

type fakeSolver struct {
	pageUrl string
	siteKey string
}

func (s *fakeSolver) SolveRecaptchaV2(_ context.Context, pageUrl, siteKey string) (string, error) {
	s.pageUrl = pageUrl
	s.siteKey = siteKey
	return "solved-token", nil
}
