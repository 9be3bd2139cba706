package metrics

import (
	"net"
	"net/http"
	"strconv"
	"time"
)

// latencyRoundTripper observes every outbound request in UpstreamLatency.
type latencyRoundTripper struct {
	next http.RoundTripper
}

func (rt *latencyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	elapsed := time.Since(start).Seconds()

	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	// no query string in the label
	safeURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	UpstreamLatency.WithLabelValues(safeURL, req.Method, status).Observe(elapsed)

	return resp, err
}

// InstrumentedTransport wraps next, or a pooled default transport when next
// is nil, so outbound latency is exported.
func InstrumentedTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
		}
	}
	return &latencyRoundTripper{next: next}
}
