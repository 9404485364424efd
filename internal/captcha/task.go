package captcha

import (
	"context"
	"encoding/json"
	"fmt"

	"forumbump/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

// capsolver, 2captcha and anti-captcha share the createTask / getTaskResult
// protocol, they only differ in endpoint and task names.
type taskApi struct {
	baseUrl     string
	recaptchaV2 string
}

var taskApis = map[string]taskApi{
	"capsolver":   {baseUrl: "https://api.capsolver.com", recaptchaV2: "ReCaptchaV2TaskProxyLess"},
	"2captcha":    {baseUrl: "https://api.2captcha.com", recaptchaV2: "RecaptchaV2TaskProxyless"},
	"anticaptcha": {baseUrl: "https://api.anti-captcha.com", recaptchaV2: "RecaptchaV2TaskProxyless"},
}

type recaptchaTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type createTaskRequest struct {
	ClientKey string        `json:"clientKey"`
	Task      recaptchaTask `json:"task"`
}

type taskResponse struct {
	ErrorId          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	// TaskId is a string on capsolver and a number everywhere else.
	TaskId   json.RawMessage `json:"taskId"`
	Status   string          `json:"status"`
	Solution struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

func (r taskResponse) err() error {
	if r.ErrorId == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrSolveFailed, r.ErrorCode, r.ErrorDescription)
}

type getTaskResultRequest struct {
	ClientKey string          `json:"clientKey"`
	TaskId    json.RawMessage `json:"taskId"`
}

type taskSolver struct {
	http   *resty.Client
	apiKey string
	task   string
	poller poller
	tel    telemetry.API
}

func (s taskSolver) call(ctx context.Context, endpoint string, body any) (taskResponse, error) {
	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return taskResponse{}, err
	}
	var out taskResponse
	err = json.Unmarshal(res.Body(), &out)
	if err != nil {
		return taskResponse{}, fmt.Errorf("decode %s response (%s): %w", endpoint, res.Status(), err)
	}
	return out, out.err()
}

func (s taskSolver) SolveRecaptchaV2(ctx context.Context, pageUrl, siteKey string) (string, error) {
	created, err := s.call(ctx, "/createTask", createTaskRequest{
		ClientKey: s.apiKey,
		Task: recaptchaTask{
			Type:       s.task,
			WebsiteURL: pageUrl,
			WebsiteKey: siteKey,
		},
	})
	if err != nil {
		s.tel.ReportBroken(report_captcha_solve, fmt.Errorf("create task: %w", err))
		return "", err
	}
	if created.Status == "ready" && created.Solution.GRecaptchaResponse != "" {
		return created.Solution.GRecaptchaResponse, nil
	}
	if len(created.TaskId) == 0 {
		err = fmt.Errorf("%w: no task id returned", ErrSolveFailed)
		s.tel.ReportBroken(report_captcha_solve, err)
		return "", err
	}
	s.tel.ReportDebug("created task", string(created.TaskId))

	token, err := s.poller.poll(ctx, func(ctx context.Context) (string, bool, error) {
		result, err := s.call(ctx, "/getTaskResult", getTaskResultRequest{
			ClientKey: s.apiKey,
			TaskId:    created.TaskId,
		})
		if err != nil {
			return "", false, err
		}
		if result.Status != "ready" {
			return "", false, nil
		}
		return result.Solution.GRecaptchaResponse, true, nil
	})
	if err != nil {
		s.tel.ReportBroken(report_captcha_solve, err, string(created.TaskId))
		return "", err
	}
	return token, nil
}
