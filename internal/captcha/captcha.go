// Package captcha solves the reCAPTCHA on the forum's login form through a
// third party solving service.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forumbump/internal/components/assert"
	"forumbump/internal/components/chrono"
	"forumbump/internal/components/telemetry"
	"forumbump/internal/config"

	"github.com/go-resty/resty/v2"
)

const (
	report_captcha_solve = "captcha.solve"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported captcha provider")
	ErrSolveTimeout        = errors.New("captcha was not solved in time")
	ErrSolveFailed         = errors.New("captcha could not be solved")
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 120 * time.Second
)

// Solver returns a g-recaptcha-response token for a reCAPTCHA v2 on a page.
type Solver interface {
	SolveRecaptchaV2(ctx context.Context, pageUrl, siteKey string) (string, error)
}

type Options struct {
	// BaseUrl overrides the API endpoint of the provider.
	BaseUrl      string
	PollInterval time.Duration
	Timeout      time.Duration
	Sleep        chrono.SleepAPI
	Time         chrono.TimeAPI
}

// Providers lists the supported values of config.Captcha.Provider.
var Providers = []string{"capsolver", "2captcha", "anticaptcha", "deathbycaptcha"}

// New creates the solver for the configured provider.
func New(cfg config.Captcha, opts Options, tel telemetry.API) (Solver, error) {
	assert.NotNil(tel)

	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = chrono.NewStandardSleep()
	}
	if opts.Time == nil {
		opts.Time = chrono.NewStandardTime()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	p := poller{
		interval: opts.PollInterval,
		timeout:  opts.Timeout,
		sleep:    opts.Sleep,
		time:     opts.Time,
	}
	tel = telemetry.NewScopedAPI(fmt.Sprintf("captcha_%s", provider), tel)

	newClient := func(defaultUrl string) *resty.Client {
		baseUrl := opts.BaseUrl
		if baseUrl == "" {
			baseUrl = defaultUrl
		}
		client := resty.New()
		client.SetBaseURL(baseUrl)
		client.SetTimeout(30 * time.Second)
		client.SetHeader("accept", "application/json")
		telemetry.InstrumentResty(client, tel, nil)
		return client
	}

	switch provider {
	case "capsolver", "2captcha", "anticaptcha":
		if cfg.ApiKey == "" {
			return nil, fmt.Errorf("%s requires an api_key", provider)
		}
		s := taskSolver{
			http:   newClient(taskApis[provider].baseUrl),
			apiKey: cfg.ApiKey,
			task:   taskApis[provider].recaptchaV2,
			poller: p,
			tel:    tel,
		}
		return s, nil
	case "deathbycaptcha":
		if cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("%s requires a username and password", provider)
		}
		s := dbcSolver{
			http:     newClient("http://api.dbcapi.me/api"),
			username: cfg.Username,
			password: cfg.Password,
			poller:   p,
			tel:      tel,
		}
		return s, nil
	}
	return nil, fmt.Errorf(
		"%w: '%s', expected one of %s",
		ErrUnsupportedProvider, cfg.Provider, strings.Join(Providers, ", "),
	)
}

type poller struct {
	interval time.Duration
	timeout  time.Duration
	sleep    chrono.SleepAPI
	time     chrono.TimeAPI
}

// poll calls `check` every interval until it reports done, fails or the
// timeout passes.
func (p poller) poll(ctx context.Context, check func(ctx context.Context) (string, bool, error)) (string, error) {
	start := p.time.Now()
	for {
		err := p.sleep.Sleep(ctx, p.interval)
		if err != nil {
			return "", err
		}
		token, done, err := check(ctx)
		if err != nil {
			return "", err
		}
		if done {
			return token, nil
		}
		if p.time.Now().Sub(start) >= p.timeout {
			return "", ErrSolveTimeout
		}
	}
}
