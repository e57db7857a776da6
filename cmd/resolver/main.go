// Command resolver runs the standalone HTTP wrapper around frame extraction
// and inference, for deployments that want extraction isolated in its own
// scaling group rather than run in-process by the worker.
package main

import (
	"os"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrollsafe/doomscroller/config"
	"github.com/scrollsafe/doomscroller/extractor"
	"github.com/scrollsafe/doomscroller/httpclient"
	"github.com/scrollsafe/doomscroller/metrics"
	"github.com/scrollsafe/doomscroller/middleware"
	"github.com/scrollsafe/doomscroller/resolver"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		glog.Fatalf("loading config: %v", err)
	}

	m := metrics.New()

	ex := extractor.New(extractor.Config{
		CookiesFile:    cfg.YTDLPCookiesFile,
		CookiesBrowser: cfg.YTDLPCookiesBrowser,
		HTTPProxy:      cfg.HTTPProxy,
		HTTPSProxy:     cfg.HTTPSProxy,
	})

	infer := httpclient.New(httpclient.Config{
		BaseURL:        cfg.InferAPIURL,
		InferAPIKey:    cfg.InferAPIKey,
		BearerToken:    cfg.HFToken,
		RequestTimeout: cfg.InferRequestTimeout,
		MaxRetries:     3,
	})

	limiter := middleware.NewCapacityLimiter(cfg.ResolverMaxInFlight, m.ResolverRequestsInFlight)
	svc := resolver.NewService(ex, infer, cfg.ResolverAPIToken, limiter)

	mux := svc.Router()
	mux.Handler("GET", "/metrics", promhttp.Handler())

	glog.Infof("resolver listening on %s", cfg.ResolverListenAddr)
	if err := resolver.ListenAndServe(cfg.ResolverListenAddr, svc, mux); err != nil {
		glog.Fatalf("resolver server exited: %v", err)
	}
}
