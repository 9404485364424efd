package captcha

import (
	"context"
	"encoding/json"
	"fmt"

	"forumbump/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

type dbcTokenParams struct {
	GoogleKey string `json:"googlekey"`
	PageUrl   string `json:"pageurl"`
}

type dbcCaptcha struct {
	Captcha   int64  `json:"captcha"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Status    int    `json:"status"`
}

// dbcSolver uses the deathbycaptcha http api with username/password auth.
type dbcSolver struct {
	http     *resty.Client
	username string
	password string
	poller   poller
	tel      telemetry.API
}

func (s dbcSolver) decode(res *resty.Response) (dbcCaptcha, error) {
	var out dbcCaptcha
	err := json.Unmarshal(res.Body(), &out)
	if err != nil {
		return dbcCaptcha{}, fmt.Errorf("decode response (%s): %w", res.Status(), err)
	}
	if out.Status != 0 {
		return dbcCaptcha{}, fmt.Errorf("%w: status %d", ErrSolveFailed, out.Status)
	}
	return out, nil
}

func (s dbcSolver) SolveRecaptchaV2(ctx context.Context, pageUrl, siteKey string) (string, error) {
	params, err := json.Marshal(dbcTokenParams{GoogleKey: siteKey, PageUrl: pageUrl})
	if err != nil {
		return "", err
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":     s.username,
			"password":     s.password,
			"type":         "4",
			"token_params": string(params),
		}).
		Post("/captcha")
	if err != nil {
		s.tel.ReportBroken(report_captcha_solve, fmt.Errorf("upload: %w", err))
		return "", err
	}
	if res.StatusCode() == 403 {
		err = fmt.Errorf("%w: login rejected or balance too low", ErrSolveFailed)
		s.tel.ReportBroken(report_captcha_solve, err)
		return "", err
	}
	uploaded, err := s.decode(res)
	if err != nil {
		s.tel.ReportBroken(report_captcha_solve, fmt.Errorf("upload: %w", err))
		return "", err
	}
	if uploaded.Captcha == 0 {
		err = fmt.Errorf("%w: no captcha id returned", ErrSolveFailed)
		s.tel.ReportBroken(report_captcha_solve, err)
		return "", err
	}

	endpoint := fmt.Sprintf("/captcha/%d", uploaded.Captcha)
	token, err := s.poller.poll(ctx, func(ctx context.Context) (string, bool, error) {
		res, err := s.http.R().SetContext(ctx).Get(endpoint)
		if err != nil {
			return "", false, err
		}
		polled, err := s.decode(res)
		if err != nil {
			return "", false, err
		}
		if polled.Text != "" {
			return polled.Text, true, nil
		}
		if !polled.IsCorrect {
			return "", false, fmt.Errorf("%w: marked incorrect", ErrSolveFailed)
		}
		return "", false, nil
	})
	if err != nil {
		s.tel.ReportBroken(report_captcha_solve, err, uploaded.Captcha)
		return "", err
	}
	return token, nil
}
