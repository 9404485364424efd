package forum

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"forumbump/internal/components/assert"
	"forumbump/internal/components/chrono"
	"forumbump/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	report_transport_request = "transport.request"
	report_transport_retry   = "transport.retry"
)

const (
	DefaultBaseUrl   = "https://ogusers.com/"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// ResponseRecorder is notified of every response the transport receives.
type ResponseRecorder interface {
	RecordResponse(ex Exchange)
}

type TransportOptions struct {
	BaseUrl   string
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond limits the request rate, 0 disables the limit.
	RequestsPerSecond float64
	Retry             RetryPolicy

	// Sleep is used for backoff waits, it defaults to chrono.StandardSleep.
	Sleep chrono.SleepAPI
	// Recorder is optional.
	Recorder ResponseRecorder
	// Output receives full request/response dumps, optional.
	Output telemetry.InstrumentOutput
}

// RequestOptions are the query parameters and form body of a request.
type RequestOptions struct {
	Query map[string]string
	Form  map[string]string
}

// Transport issues requests against a single origin, retrying transient
// failures with exponential backoff. Requests are serialized, a caller blocks
// through the backoff of the request before it.
type Transport struct {
	BaseUrl *url.URL
	Http    *resty.Client
	Jar     http.CookieJar

	retry    RetryPolicy
	sleep    chrono.SleepAPI
	recorder ResponseRecorder
	tel      telemetry.API

	inflight sync.Mutex
	lastMu   sync.RWMutex
	last     *Exchange
}

func NewTransport(opts TransportOptions, tel telemetry.API) (*Transport, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("forum_transport", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.InitialWait == 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Sleep == nil {
		opts.Sleep = chrono.NewStandardSleep()
	}

	parsedBaseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: '%s'", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(parsedBaseUrl.String(), "/"))
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	return &Transport{
		BaseUrl:  parsedBaseUrl,
		Http:     httpClient,
		Jar:      jar,
		retry:    opts.Retry,
		sleep:    opts.Sleep,
		recorder: opts.Recorder,
		tel:      tel,
	}, nil
}

// relativePath strips everything up to and including the origin host so
// full urls, scheme-less urls and bare paths all resolve against BaseUrl.
func (t *Transport) relativePath(ref string) string {
	host := t.BaseUrl.Host + "/"
	idx := strings.LastIndex(ref, host)
	if idx >= 0 {
		ref = ref[idx+len(host):]
	}
	return strings.TrimPrefix(ref, "/")
}

// Request sends a request to `path` relative to the origin. Network errors
// are retried according to the retry policy, gateway and cloudflare 5xx
// statuses only for GET. Every other response is returned as is.
func (t *Transport) Request(ctx context.Context, method, path string, opts RequestOptions) (*resty.Response, error) {
	t.inflight.Lock()
	defer t.inflight.Unlock()

	endpoint := "/" + t.relativePath(path)

	for attempt := 0; ; attempt++ {
		req := t.Http.R().SetContext(ctx)
		if len(opts.Query) > 0 {
			req.SetQueryParams(opts.Query)
		}
		if len(opts.Form) > 0 {
			req.SetFormData(opts.Form)
		}

		res, err := req.Execute(method, endpoint)
		if err == nil {
			t.record(method, res)
			// a gateway error on a form submission may still have been
			// processed, resending it could post twice
			if !transientStatus(res.StatusCode()) || method != http.MethodGet {
				return res, nil
			}
			err = fmt.Errorf("server responded with %s", res.Status())
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTransient(err) {
				t.tel.ReportBroken(report_transport_request, err, method, endpoint)
				return nil, err
			}
		}

		if t.retry.exhausted(attempt + 1) {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrRetriesExhausted, method, endpoint, err)
		}

		wait := t.retry.Backoff(attempt)
		t.tel.ReportWarning(
			report_transport_retry,
			fmt.Errorf("the request failed, waiting %s before trying again: %w", wait, err),
			method,
			endpoint,
		)
		err = t.sleep.Sleep(ctx, wait)
		if err != nil {
			return nil, err
		}
	}
}

func (t *Transport) Get(ctx context.Context, path string, query map[string]string) (*resty.Response, error) {
	return t.Request(ctx, http.MethodGet, path, RequestOptions{Query: query})
}

func (t *Transport) Post(ctx context.Context, path string, opts RequestOptions) (*resty.Response, error) {
	return t.Request(ctx, http.MethodPost, path, opts)
}

func (t *Transport) record(method string, res *resty.Response) {
	ex := Exchange{
		Method: method,
		Url:    FinalUrl(res),
		Status: res.StatusCode(),
		Body:   res.String(),
	}

	t.lastMu.Lock()
	t.last = &ex
	t.lastMu.Unlock()

	if t.recorder != nil {
		t.recorder.RecordResponse(ex)
	}
}

// LastExchange returns the most recent response, false if no request has completed.
func (t *Transport) LastExchange() (Exchange, bool) {
	t.lastMu.RLock()
	defer t.lastMu.RUnlock()
	if t.last == nil {
		return Exchange{}, false
	}
	return *t.last, true
}

// SetCookie stores a cookie for the origin.
func (t *Transport) SetCookie(name, value string) {
	t.Jar.SetCookies(t.BaseUrl, []*http.Cookie{{
		Name:  name,
		Value: value,
		Path:  "/",
	}})
}

// Cookie returns the value of a cookie sent to the origin, "" if it is not set.
func (t *Transport) Cookie(name string) string {
	for _, c := range t.Jar.Cookies(t.BaseUrl) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// FinalUrl is the url of the response after following redirects.
func FinalUrl(res *resty.Response) string {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL.String()
	}
	return res.Request.URL
}
