package http

import (
	"testing"
	"time"
)

func routeSet(s *Server) map[string]bool {
	paths := make(map[string]bool)
	for _, r := range s.Echo().Routes() {
		paths[r.Path] = true
	}
	return paths
}

func TestScrapeEndpointFollowsConfiguredPath(t *testing.T) {
	s := NewServer(nil, WithRequestMetrics("/internal/metrics", nil, time.Second))
	paths := routeSet(s)
	if !paths["/internal/metrics"] {
		t.Fatalf("scrape endpoint not registered on configured path: %v", paths)
	}
	if paths["/metrics"] {
		t.Fatal("default path still registered alongside configured one")
	}
}

func TestScrapeEndpointAbsentWhenMetricsDisabled(t *testing.T) {
	if paths := routeSet(NewServer(nil)); paths["/metrics"] {
		t.Fatal("scrape endpoint registered without metrics enabled")
	}
}
