package config

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultPostDelay is used when `post_delay` is missing, in seconds.
	DefaultPostDelay float64 = 10
	// DefaultBumpDelay is used when `bump_delay` is missing, in minutes.
	DefaultBumpDelay float64 = 60
	// FallbackMessage is posted when neither the thread nor the config has a message.
	FallbackMessage = "This thread is being auto bumped"

	DefaultHost = "127.0.0.1"
	DefaultPort = 8080
)

// Captcha holds the credentials of a CAPTCHA solving provider.
type Captcha struct {
	Provider string `json:"provider"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	ApiKey   string `json:"api_key,omitempty"`
}

// Thread is a single forum destination.
type Thread struct {
	// Id is either a numeric thread id or a full/partial thread url.
	Id      string `json:"id"`
	Message string `json:"message,omitempty"`
	Name    string `json:"name,omitempty"`
}

// DisplayName is the name if set, otherwise the id.
func (t Thread) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Id
}

// Configuration is the validated bump schedule.
type Configuration struct {
	// PostDelay is the time between posts within a cycle, in seconds.
	PostDelay float64 `json:"post_delay"`
	// BumpDelay is the time between cycles, in minutes.
	BumpDelay      float64  `json:"bump_delay"`
	DefaultMessage string   `json:"default_message,omitempty"`
	Captcha        *Captcha `json:"captcha,omitempty"`
	Threads        []Thread `json:"threads"`

	// Host and Port are where the dashboard listens.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

// PostInterval is the sleep between two posts of the same cycle.
func (c Configuration) PostInterval() time.Duration {
	return seconds(c.PostDelay)
}

// BumpInterval is the sleep between two cycles.
func (c Configuration) BumpInterval() time.Duration {
	return seconds(c.BumpDelay * 60)
}

// MessageFor resolves the message to post to a thread: the thread's own,
// else the default message, else FallbackMessage.
func (c Configuration) MessageFor(thread Thread) string {
	if thread.Message != "" {
		return thread.Message
	}
	if c.DefaultMessage != "" {
		return c.DefaultMessage
	}
	return FallbackMessage
}

// ListenAddr is the dashboard address.
func (c Configuration) ListenAddr() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	out := c
	out.Threads = make([]Thread, len(c.Threads))
	copy(out.Threads, c.Threads)
	if c.Captcha != nil {
		captcha := *c.Captcha
		out.Captcha = &captcha
	}
	return out
}

// Redacted is a copy with the CAPTCHA password and api key removed.
func (c Configuration) Redacted() Configuration {
	out := c.Clone()
	if out.Captcha != nil {
		out.Captcha.Password = ""
		out.Captcha.ApiKey = ""
	}
	return out
}

// Thread returns the index of the thread with the given id, -1 if there is none.
func (c Configuration) Thread(id string) int {
	for i, t := range c.Threads {
		if t.Id == id {
			return i
		}
	}
	return -1
}

// checkDelay allows zero, which posts without waiting.
func checkDelay(n float64, field string) error {
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return invalidType(field)
	}
	if n < 0 {
		return outOfRange(field)
	}
	return nil
}

// Check validates an already typed configuration, it is used after every
// mutation of a live configuration.
func (c Configuration) Check() error {
	if err := checkDelay(c.PostDelay, "post_delay"); err != nil {
		return err
	}
	if err := checkDelay(c.BumpDelay, "bump_delay"); err != nil {
		return err
	}
	if len(c.Threads) == 0 {
		return missingData("No threads provided")
	}
	for i, t := range c.Threads {
		if t.Id == "" {
			return missingThreadData(i + 1)
		}
	}
	if c.Captcha != nil {
		err := c.Captcha.check()
		if err != nil {
			return err
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return outOfRange("port")
	}
	return nil
}

func (c Captcha) check() error {
	if c.Provider == "" {
		return missingData("Missing provider for CAPTCHA")
	}
	if (c.Username == "" || c.Password == "") && c.ApiKey == "" {
		return missingData("Missing login information for CAPTCHA user")
	}
	return nil
}

func (c Configuration) String() string {
	return fmt.Sprintf(
		"post_delay=%gs bump_delay=%gm threads=%d",
		c.PostDelay, c.BumpDelay, len(c.Threads),
	)
}
