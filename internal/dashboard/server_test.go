package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"forumbump/internal/bumper"
	"forumbump/internal/components/chrono/chronotest"
	"forumbump/internal/components/telemetry/telemetrytest"
	"forumbump/internal/config"
	"forumbump/internal/scrapers/forum"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type staticUser struct {
	profile forum.Profile
}

func (u staticUser) Profile() (forum.Profile, bool) {
	return u.profile, true
}

type fixture struct {
	router *gin.Engine
	store  *config.Store
	stats  *bumper.Stats
	source config.FileSource
	clock  *chronotest.Clock
}

func setup(t *testing.T, token string) fixture {
	gin.SetMode(gin.TestMode)

	clock := chronotest.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store := config.NewStore(config.Configuration{
		PostDelay: 10,
		BumpDelay: 60,
		Threads: []config.Thread{
			{Id: "1", Name: "first"},
			{Id: "2"},
		},
	})
	stats := bumper.NewStats(clock)
	source := config.NewFileSource(filepath.Join(t.TempDir(), "config.json"))

	router, err := NewRouter(StartOpts{
		AccessToken: token,
		Store:       store,
		Stats:       stats,
		Source:      source,
		User:        staticUser{profile: forum.Profile{Name: "bumpy", Uid: "1337"}},
		Time:        clock,
		Tel:         &telemetrytest.Recorder{},
	})
	require.NoError(t, err)

	return fixture{router: router, store: store, stats: stats, source: source, clock: clock}
}

func (f fixture) do(t *testing.T, method, path string, form url.Values, token string) (int, map[string]any) {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("content-type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func requireError(t *testing.T, code int, body map[string]any, expectCode int, expectMessage string) {
	t.Helper()
	require.Equal(t, expectCode, code)
	require.Equal(t, false, body["success"])
	require.Equal(t, expectMessage, body["error"])
}

func TestNewRouterRequiresStore(t *testing.T) {
	_, err := NewRouter(StartOpts{Tel: &telemetrytest.Recorder{}})
	require.ErrorContains(t, err, "store is required")
}

func TestAuth(t *testing.T) {
	f := setup(t, "secret")

	code, body := f.do(t, "GET", "/api/status", nil, "")
	requireError(t, code, body, http.StatusUnauthorized, "Unauthorized")

	code, body = f.do(t, "GET", "/api/status", nil, "wrong")
	requireError(t, code, body, http.StatusUnauthorized, "Unauthorized")

	code, _ = f.do(t, "GET", "/api/status", nil, "secret")
	require.Equal(t, http.StatusOK, code)

	open := setup(t, "")
	code, _ = open.do(t, "GET", "/api/status", nil, "")
	require.Equal(t, http.StatusOK, code)
}

func TestStatus(t *testing.T) {
	f := setup(t, "")
	f.clock.Advance(90 * time.Second)

	code, body := f.do(t, "GET", "/api/status", nil, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(90), body["elapsed_seconds"])
	require.Equal(t, "bumpy", body["user"].(map[string]any)["name"])

	data := body["data"].(map[string]any)
	require.Equal(t, "2024-01-01 00:00:00", data["start"])
	require.Nil(t, data["last_bump"])
	require.Equal(t, map[string]any{"posts": float64(0), "bumps": float64(0)}, data["totals"])

	cfg := body["config"].(map[string]any)
	require.Len(t, cfg["threads"], 2)
	require.Nil(t, cfg["captcha"])
}

func TestStatusHidesCaptchaSecrets(t *testing.T) {
	f := setup(t, "")
	_, err := f.store.Update(func(cfg *config.Configuration) error {
		cfg.Captcha = &config.Captcha{Provider: "2captcha", ApiKey: "secret-key", Username: "solver", Password: "secret-pass"}
		return nil
	})
	require.NoError(t, err)

	code, body := f.do(t, "GET", "/api/status", nil, "")
	require.Equal(t, http.StatusOK, code)
	captcha := body["config"].(map[string]any)["captcha"].(map[string]any)
	require.Equal(t, map[string]any{"provider": "2captcha", "username": "solver"}, captcha)

	require.Equal(t, "secret-key", f.store.Snapshot().Captcha.ApiKey)
}

func TestLastRequest(t *testing.T) {
	f := setup(t, "")

	code, body := f.do(t, "GET", "/api/last_request", nil, "")
	requireError(t, code, body, http.StatusBadRequest, "No request has been made")

	f.stats.RecordResponse(forum.Exchange{Method: "GET", Status: 200, Body: "<html>page</html>"})
	req := httptest.NewRequest("GET", "/api/last_request", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<html>page</html>", rec.Body.String())
}

func TestConfig(t *testing.T) {
	f := setup(t, "")

	code, body := f.do(t, "POST", "/api/config", url.Values{"bump_delay": {"soon"}}, "")
	requireError(t, code, body, http.StatusBadRequest, "Invalid data type given")

	code, body = f.do(t, "POST", "/api/config", url.Values{"post_delay": {"abc"}}, "")
	requireError(t, code, body, http.StatusBadRequest, "Invalid data type given")

	code, body = f.do(t, "POST", "/api/config", url.Values{"default_message": {"short"}}, "")
	requireError(t, code, body, http.StatusBadRequest, "Default message is too short")

	code, body = f.do(t, "POST", "/api/config", url.Values{"bump_delay": {"-5"}}, "")
	requireError(t, code, body, http.StatusBadRequest, "Value out of range")
	require.Equal(t, float64(60), f.store.Snapshot().BumpDelay)

	code, body = f.do(t, "POST", "/api/config", url.Values{
		"bump_delay":      {"30"},
		"post_delay":      {"2.5"},
		"default_message": {"bumping this thread"},
	}, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Updated configuration", body["message"])

	cfg := f.store.Snapshot()
	require.Equal(t, float64(30), cfg.BumpDelay)
	require.Equal(t, 2.5, cfg.PostDelay)
	require.Equal(t, "bumping this thread", cfg.DefaultMessage)

	saved, err := config.Load(&telemetrytest.Recorder{}, f.source)
	require.NoError(t, err)
	require.Equal(t, cfg, saved)
}

func TestThread(t *testing.T) {
	f := setup(t, "")

	table := []struct {
		name          string
		form          url.Values
		expectCode    int
		expectMessage string
		expectIds     []string
	}{
		{name: "no method", form: url.Values{"thread": {"1"}}, expectCode: 400, expectMessage: "No method given", expectIds: []string{"1", "2"}},
		{name: "no thread", form: url.Values{"method": {"create"}}, expectCode: 400, expectMessage: "No thread given", expectIds: []string{"1", "2"}},
		{
			name:          "bad method",
			form:          url.Values{"method": {"rename"}, "thread": {"1"}},
			expectCode:    400,
			expectMessage: "Invalid method, please use one of the following: create, edit, delete",
			expectIds:     []string{"1", "2"},
		},
		{name: "create", form: url.Values{"method": {"create"}, "thread": {"Thread-new"}, "name": {"new"}}, expectCode: 200, expectMessage: "Successfully added thread", expectIds: []string{"1", "2", "Thread-new"}},
		{name: "create empty", form: url.Values{"method": {"create"}, "thread": {""}}, expectCode: 400, expectMessage: "Missing data in thread 4", expectIds: []string{"1", "2", "Thread-new"}},
		{name: "edit missing", form: url.Values{"method": {"edit"}, "thread": {"9"}}, expectCode: 400, expectMessage: "Thread does not exist", expectIds: []string{"1", "2", "Thread-new"}},
		{name: "edit", form: url.Values{"method": {"edit"}, "thread": {"2"}, "message": {"custom"}, "name": {"second"}}, expectCode: 200, expectMessage: "Edited thread successfully", expectIds: []string{"1", "2", "Thread-new"}},
		{name: "delete", form: url.Values{"method": {"delete"}, "thread": {"1"}}, expectCode: 200, expectMessage: "Successfully deleted the thread", expectIds: []string{"2", "Thread-new"}},
		{name: "delete missing", form: url.Values{"method": {"delete"}, "thread": {"1"}}, expectCode: 400, expectMessage: "Thread does not exist", expectIds: []string{"2", "Thread-new"}},
	}

	for _, test := range table {
		code, body := f.do(t, "POST", "/api/thread", test.form, "")
		require.Equal(t, test.expectCode, code, test.name)
		if test.expectCode == 200 {
			require.Equal(t, test.expectMessage, body["message"], test.name)
		} else {
			require.Equal(t, test.expectMessage, body["error"], test.name)
		}

		var ids []string
		for _, thread := range f.store.Snapshot().Threads {
			ids = append(ids, thread.Id)
		}
		require.Equal(t, test.expectIds, ids, test.name)
	}

	cfg := f.store.Snapshot()
	require.Equal(t, config.Thread{Id: "2", Message: "custom", Name: "second"}, cfg.Threads[0])
}

func TestDeleteLastThread(t *testing.T) {
	f := setup(t, "")

	code, _ := f.do(t, "POST", "/api/thread", url.Values{"method": {"delete"}, "thread": {"1"}}, "")
	require.Equal(t, http.StatusOK, code)
	code, body := f.do(t, "POST", "/api/thread", url.Values{"method": {"delete"}, "thread": {"2"}}, "")
	requireError(t, code, body, http.StatusBadRequest, "No threads provided")
	require.Len(t, f.store.Snapshot().Threads, 1)
}

func TestStartShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, StartOpts{
			Addr:  "127.0.0.1:0",
			Store: config.NewStore(config.Configuration{PostDelay: 1, BumpDelay: 1, Threads: []config.Thread{{Id: "1"}}}),
			Stats: bumper.NewStats(chronotest.NewClock(time.Unix(0, 0))),
			Tel:   &telemetrytest.Recorder{},
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dashboard did not shut down")
	}
}
