package strategy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// NewHTTPCallStrategy returns the HttpCall strategy: ExecCommand is parsed
// as a URL; GET is used when ExecParams is empty, POST with form-encoded
// params otherwise. Success is any 2xx status; 5xx is retry-eligible.
func NewHTTPCallStrategy() Strategy {
	return StrategyFunc(httpCallExecute)
}

func httpCallExecute(ctx context.Context, sctx *Context) types.TaskResult {
	start := time.Now()

	u, err := url.Parse(sctx.Cfg.ExecCommand)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return types.Failed("invalid url: " + sctx.Cfg.ExecCommand)
	}

	client := &http.Client{Timeout: sctx.RemainingTimeout(30 * time.Second)}

	var req *http.Request
	if len(sctx.Cfg.ExecParams) == 0 {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		form := url.Values{}
		for k, v := range sctx.Cfg.ExecParams {
			if strings.HasPrefix(k, "_") {
				continue // internal bookkeeping keys such as _nesting_depth
			}
			form.Set(k, v)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if method := sctx.Cfg.ExecParams["method"]; method != "" && req != nil {
		req.Method = strings.ToUpper(method)
	}
	if err != nil {
		return types.Failed("exception: " + err.Error())
	}

	resp, err := client.Do(req)
	if err != nil {
		return types.TaskResult{Status: types.StatusFailed, Message: "http transport: " + err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	res := types.TaskResult{
		DurationMs: time.Since(start).Milliseconds(),
		ExitCode:   resp.StatusCode,
		StdoutData: string(body),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Status = types.StatusSuccess
		return res
	}
	res.Status = types.StatusFailed
	res.Message = "http status " + resp.Status
	return res
}
