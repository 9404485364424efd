package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"forumbump/internal/captcha"
	"forumbump/internal/components/telemetry"
	"forumbump/internal/config"
	"forumbump/internal/keychain"
	"forumbump/internal/scrapers/forum"
	"forumbump/pkg/configutil"
	"forumbump/pkg/serviceutil"

	"github.com/spf13/cobra"
)

type RetryConfig struct {
	InitialWaitSeconds float64 `json:"initial_wait_seconds"`
	Multiplier         float64 `json:"multiplier"`
	MaxWaitSeconds     float64 `json:"max_wait_seconds"`
	// MaxAttempts of 0 retries forever.
	MaxAttempts int `json:"max_attempts"`
}

type DashboardConfig struct {
	AccessToken string `json:"access_token"`
}

// ServiceConfig is everything about how the bumper runs that is not part of
// the bump schedule.
type ServiceConfig struct {
	BaseUrl           string           `json:"base_url"`
	CookieName        string           `json:"cookie_name"`
	Database          string           `json:"database"`
	UserAgent         string           `json:"user_agent"`
	TimeoutSeconds    float64          `json:"timeout_seconds"`
	RequestsPerSecond float64          `json:"requests_per_second"`
	Retry             RetryConfig      `json:"retry"`
	Dashboard         DashboardConfig  `json:"dashboard"`
	Telemetry         telemetry.Config `json:"telemetry"`
}

var defaultServiceConfig = ServiceConfig{
	BaseUrl:           forum.DefaultBaseUrl,
	CookieName:        forum.DefaultCookieName,
	Database:          "bumper.db",
	UserAgent:         forum.DefaultUserAgent,
	TimeoutSeconds:    30,
	RequestsPerSecond: 2,
	Retry: RetryConfig{
		InitialWaitSeconds: 4,
		Multiplier:         2,
		MaxWaitSeconds:     256,
	},
}

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

func (c ServiceConfig) retryPolicy() forum.RetryPolicy {
	return forum.RetryPolicy{
		InitialWait: seconds(c.Retry.InitialWaitSeconds),
		Multiplier:  c.Retry.Multiplier,
		MaxWait:     seconds(c.Retry.MaxWaitSeconds),
		MaxAttempts: c.Retry.MaxAttempts,
	}
}

func loadServiceConfig() ServiceConfig {
	cfg, err := configutil.ReadConfigOr(serviceConfigPath, defaultServiceConfig)
	if err != nil {
		serviceutil.Fatal("failed to read service config", err)
	}
	return cfg
}

// env is everything a command needs to talk to the forum.
type env struct {
	service   ServiceConfig
	tel       telemetry.API
	otel      telemetry.Telemetry
	transport *forum.Transport
	session   *forum.Session
	keychain  *keychain.Keychain
}

type envOptions struct {
	recorder forum.ResponseRecorder
	captcha  *config.Captcha
}

func newEnv(ctx context.Context, opts envOptions) *env {
	service := loadServiceConfig()

	var tel telemetry.API = telemetry.NewSlogAPI(nil)
	var otelTelemetry telemetry.Telemetry
	if service.Telemetry.Enabled() {
		var err error
		otelTelemetry, err = telemetry.SetupOtel(ctx, "bumper", service.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to setup otel", err)
		}
		otelApi, err := telemetry.NewOtelAPI(tel)
		if err != nil {
			serviceutil.Fatal("failed to create otel metrics", err)
		}
		tel = otelApi
		telemetry.InstrumentPerfStats(ctx)
	}

	var output telemetry.InstrumentOutput
	if verbose {
		fsOutput, err := telemetry.NewFilesystemOutput(".dev/resty")
		if err != nil {
			slog.Warn("failed to create request dump directory", "err", err)
		} else {
			output = fsOutput
		}
	}

	transport, err := forum.NewTransport(forum.TransportOptions{
		BaseUrl:           service.BaseUrl,
		UserAgent:         service.UserAgent,
		Timeout:           seconds(service.TimeoutSeconds),
		RequestsPerSecond: service.RequestsPerSecond,
		Retry:             service.retryPolicy(),
		Recorder:          opts.recorder,
		Output:            output,
	}, tel)
	if err != nil {
		serviceutil.Fatal("failed to create forum transport", err)
	}

	sessionOpts := forum.SessionOptions{CookieName: service.CookieName}
	if opts.captcha != nil {
		solver, err := captcha.New(*opts.captcha, captcha.Options{}, tel)
		if err != nil {
			serviceutil.Fatal("failed to create captcha solver", err)
		}
		sessionOpts.Solver = solver
	}

	keys, err := keychain.Open(ctx, service.Database)
	if err != nil {
		serviceutil.Fatal("failed to open session database", err)
	}

	return &env{
		service:   service,
		tel:       tel,
		otel:      otelTelemetry,
		transport: transport,
		session:   forum.NewSession(transport, sessionOpts, tel),
		keychain:  keys,
	}
}

func (e *env) Close() {
	e.keychain.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to shutdown otel", "err", err)
	}
}

// storedCredentials fills in a stored cookie when no password or cookie is
// given: the session of the given username, or the most recent one when no
// username is given either. The bool reports whether a stored session is used.
func storedCredentials(ctx context.Context, keys *keychain.Keychain, creds forum.Credentials) (forum.Credentials, bool, error) {
	if creds.Cookie != "" || creds.Password != "" {
		return creds, false, nil
	}

	var session keychain.Session
	var err error
	if creds.Username == "" {
		session, err = keys.LatestSession(ctx)
	} else {
		session, err = keys.Session(ctx, creds.Username)
	}
	if err != nil {
		return creds, false, err
	}
	creds.Username = session.Username
	creds.Cookie = session.Cookie
	return creds, true, nil
}

// login authenticates with the given credentials, falling back to a stored
// session when no password or cookie is given. Successful logins are stored
// under the returned username.
func (e *env) login(ctx context.Context, creds forum.Credentials) string {
	creds, stored, err := storedCredentials(ctx, e.keychain, creds)
	if errors.Is(err, keychain.ErrNoSession) {
		serviceutil.Fatal("no stored session, log in with -u and -p or -c", nil)
	}
	if err != nil {
		serviceutil.Fatal("failed to read stored session", err)
	}

	err = e.session.Authenticate(ctx, creds)
	if errors.Is(err, forum.ErrInvalidUser) && stored {
		e.keychain.DeleteSession(ctx, creds.Username)
		serviceutil.Fatal("invalid stored session, log in again", err)
	}
	if err != nil {
		serviceutil.Fatal("failed to log in", err)
	}

	username := creds.Username
	if profile, ok := e.session.Profile(); ok {
		slog.Info("logged in", "name", profile.Name, "uid", profile.Uid)
		if username == "" {
			username = profile.Name
		}
	}
	err = e.keychain.SaveSession(ctx, username, e.session.Cookie())
	if err != nil {
		slog.Warn("failed to store session", "err", err)
	}
	return username
}

// credentialFlags are the login flags shared by every command talking to the forum.
type credentialFlags struct {
	username  string
	password  string
	cookie    string
	twoFactor string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.username, "username", "u", "", "Forum username, without a password the stored session of this user is used.")
	flags.StringVarP(&f.password, "password", "p", "", "Forum password.")
	flags.StringVarP(&f.cookie, "cookie", "c", "", "Login cookie, used instead of the username and password.")
	flags.StringVar(&f.twoFactor, "tfa", "", "Current 2FA code.")
}

func (f *credentialFlags) credentials() forum.Credentials {
	return forum.Credentials{
		Username:  f.username,
		Password:  f.password,
		TwoFactor: f.twoFactor,
		Cookie:    f.cookie,
	}
}
