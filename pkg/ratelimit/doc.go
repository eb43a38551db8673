// Package ratelimit spaces upstream calls so a run stays inside the API budget.
//
// Every upstream call goes through Limiter.Wait first, including per-post comment
// fetches. FixedInterval is the baseline (one call per interval, 600ms by default
// for a 100 requests/minute budget). SlidingWindow caps calls per window. Adaptive
// also implements Observer and shrinks or refills its budget from the
// X-Ratelimit-Remaining and X-Ratelimit-Reset headers of each response.
//
//	limiter, err := ratelimit.New(cfg.RateLimit.Policy, cfg.RateLimit.MinInterval, cfg.RateLimit.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//	resp, err := http.DefaultClient.Do(req)
//	if obs, ok := limiter.(ratelimit.Observer); ok {
//	    obs.Observe(resp.Header)
//	}
package ratelimit
