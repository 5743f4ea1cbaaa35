package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"switchboard/config"
	"switchboard/util"
)

// DialFunc establishes a network connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ProbeResult records whether a single port accepted a connection.
type ProbeResult struct {
	Port int   `json:"port"`
	Open bool  `json:"open"`
	Err  error `json:"-"`
}

// Probe checks which of the given ports on host accept TCP
// connections, with bounded concurrency.  Results come back in the
// same order as the input slice.  A nil dial uses a plain TCP dialer.
func Probe(ctx context.Context, host string, ports []int, timeout time.Duration, concurrency int, dial DialFunc) []ProbeResult {
	if timeout == 0 {
		timeout = config.DefaultProbeTimeout
	}
	if concurrency < 1 {
		concurrency = config.DefaultProbeConcurrency
	}
	if dial == nil {
		dial = func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, address)
		}
	}

	results := make([]ProbeResult, len(ports))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, port := range ports {
		wg.Add(1)
		go func(idx, p int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			addr := util.FormatAddr(host, p)
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			conn, err := dial(probeCtx, "tcp", addr)
			if err != nil {
				results[idx] = ProbeResult{Port: p, Open: false, Err: err}
				return
			}
			conn.Close()
			results[idx] = ProbeResult{Port: p, Open: true}
		}(i, port)
	}

	wg.Wait()
	return results
}
