package dashboard

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"forumbump/internal/bumper"
	"forumbump/internal/components/chrono"
	"forumbump/internal/components/telemetry"
	"forumbump/internal/config"

	"github.com/gin-gonic/gin"
)

const minDefaultMessageLength = 8

type api struct {
	accessToken string
	store       *config.Store
	stats       *bumper.Stats
	source      config.Source
	user        UserSource
	time        chrono.TimeAPI
	tel         telemetry.API
}

func newApi(opts StartOpts) api {
	return api{
		accessToken: opts.AccessToken,
		store:       opts.Store,
		stats:       opts.Stats,
		source:      opts.Source,
		user:        opts.User,
		time:        opts.Time,
		tel:         telemetry.NewScopedAPI("dashboard", opts.Tel),
	}
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, a api) {
	group := router.Group("/api", a.requireToken)
	group.GET("/status", a.handleStatus)
	group.GET("/last_request", a.handleLastRequest)
	group.POST("/config", a.handleConfig)
	group.POST("/thread", a.handleThread)
}

func apiSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
	})
}

func apiError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

func (a api) requireToken(c *gin.Context) {
	if a.accessToken == "" {
		c.Next()
		return
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.accessToken)) != 1 {
		apiError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.Next()
}

func (a api) handleStatus(c *gin.Context) {
	var user any
	if a.user != nil {
		if profile, ok := a.user.Profile(); ok {
			user = profile
		}
	}
	snapshot := a.stats.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"user":            user,
		"config":          a.store.Snapshot().Redacted(),
		"data":            a.stats.AsDict(),
		"elapsed_seconds": int64(a.time.Now().Sub(snapshot.Start).Seconds()),
	})
}

func (a api) handleLastRequest(c *gin.Context) {
	last := a.stats.Snapshot().LastRequest
	if last == nil {
		apiError(c, http.StatusBadRequest, "No request has been made")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(last.Body))
}

// update applies a mutation to the live configuration and persists it.
func (a api) update(c *gin.Context, mutate func(cfg *config.Configuration) error) bool {
	cfg, err := a.store.Update(mutate)
	if err != nil {
		var cfgErr *config.ConfigError
		var reqErr requestError
		switch {
		case errors.As(err, &reqErr):
			apiError(c, http.StatusBadRequest, string(reqErr))
		case errors.As(err, &cfgErr):
			a.tel.ReportWarning(report_dashboard_update, err)
			apiError(c, http.StatusBadRequest, cfgErr.Message)
		default:
			a.tel.ReportBroken(report_dashboard_update, err)
			apiError(c, http.StatusInternalServerError, err.Error())
		}
		return false
	}

	if a.source != nil {
		err = a.source.Save(cfg)
		if err != nil {
			a.tel.ReportBroken(report_dashboard_save, err)
			apiError(c, http.StatusInternalServerError, fmt.Sprintf("Failed to save configuration: %s", err.Error()))
			return false
		}
	}
	return true
}

// requestError is a mutation failure caused by the request itself.
type requestError string

func (e requestError) Error() string {
	return string(e)
}

func (a api) handleConfig(c *gin.Context) {
	var bumpDelay, postDelay *float64
	for field, out := range map[string]**float64{"bump_delay": &bumpDelay, "post_delay": &postDelay} {
		value := c.PostForm(field)
		if value == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			apiError(c, http.StatusBadRequest, "Invalid data type given")
			return
		}
		*out = &n
	}

	defaultMessage := c.PostForm("default_message")
	if defaultMessage != "" && len(defaultMessage) < minDefaultMessageLength {
		apiError(c, http.StatusBadRequest, "Default message is too short")
		return
	}

	ok := a.update(c, func(cfg *config.Configuration) error {
		if bumpDelay != nil {
			cfg.BumpDelay = *bumpDelay
		}
		if postDelay != nil {
			cfg.PostDelay = *postDelay
		}
		if defaultMessage != "" {
			cfg.DefaultMessage = defaultMessage
		}
		return nil
	})
	if !ok {
		return
	}
	apiSuccess(c, "Updated configuration")
}

func (a api) handleThread(c *gin.Context) {
	method, ok := c.GetPostForm("method")
	if !ok {
		apiError(c, http.StatusBadRequest, "No method given")
		return
	}
	id, ok := c.GetPostForm("thread")
	if !ok {
		apiError(c, http.StatusBadRequest, "No thread given")
		return
	}
	id = strings.TrimSpace(id)
	message := c.PostForm("message")
	name := c.PostForm("name")

	var mutate func(cfg *config.Configuration) error
	var success string
	switch method {
	case "create":
		success = "Successfully added thread"
		mutate = func(cfg *config.Configuration) error {
			cfg.Threads = append(cfg.Threads, config.Thread{Id: id, Message: message, Name: name})
			return nil
		}
	case "edit":
		success = "Edited thread successfully"
		mutate = func(cfg *config.Configuration) error {
			i := cfg.Thread(id)
			if i < 0 {
				return requestError("Thread does not exist")
			}
			cfg.Threads[i].Message = message
			cfg.Threads[i].Name = name
			return nil
		}
	case "delete":
		success = "Successfully deleted the thread"
		mutate = func(cfg *config.Configuration) error {
			i := cfg.Thread(id)
			if i < 0 {
				return requestError("Thread does not exist")
			}
			cfg.Threads = slices.Delete(cfg.Threads, i, i+1)
			return nil
		}
	default:
		apiError(c, http.StatusBadRequest, "Invalid method, please use one of the following: create, edit, delete")
		return
	}

	if !a.update(c, mutate) {
		return
	}
	a.tel.ReportInfo(fmt.Sprintf("%s thread %s", method, id))
	apiSuccess(c, success)
}
