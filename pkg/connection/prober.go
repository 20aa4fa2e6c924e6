/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package connection

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/collarlink/pkg/logger"
)

const (
	DefaultMDNSService      = "_petg-collar._tcp"
	DefaultMDNSDomain       = "local."
	DefaultSessionPath      = "/ws"
	defaultProbeTimeout     = time.Second
	defaultProbeConcurrency = 8
	defaultBrowseTimeout    = 2 * time.Second
)

// DirectProber dials a list of candidate endpoints in parallel and returns
// the first one that completes a handshake.
type DirectProber struct {
	Dialer      Dialer
	Candidates  []string
	Path        string
	Timeout     time.Duration
	Concurrency int
	// MDNS adds endpoints advertised under MDNSService to the candidates.
	MDNS          bool
	MDNSService   string
	BrowseTimeout time.Duration
	Logger        logger.Logger

	// browse replaces the mDNS lookup in tests
	browse func(ctx context.Context) ([]string, error)
}

// Probe implements Prober.
func (p *DirectProber) Probe(ctx context.Context) (string, error) {
	candidates := p.candidateURLs(ctx)
	if len(candidates) == 0 {
		return "", ErrNoCandidate
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	limit := p.Concurrency
	if limit <= 0 {
		limit = defaultProbeConcurrency
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		once   sync.Once
		winner string
	)

	for _, url := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			actx, acancel := context.WithTimeout(gctx, timeout)
			defer acancel()

			s, err := p.Dialer.Dial(actx, url)
			if err != nil {
				p.log().Debug().Err(err).Str("candidate", url).Msg("Probe failed")
				return nil
			}

			_ = s.Close()

			once.Do(func() {
				winner = url
				cancel()
			})

			return nil
		})
	}

	_ = g.Wait()

	if winner == "" {
		return "", fmt.Errorf("%w among %d candidates", ErrNoCandidate, len(candidates))
	}

	return winner, nil
}

func (p *DirectProber) log() logger.Logger {
	if p.Logger == nil {
		return logger.NewTestLogger()
	}

	return p.Logger
}

func (p *DirectProber) candidateURLs(ctx context.Context) []string {
	path := p.Path
	if path == "" {
		path = DefaultSessionPath
	}

	seen := make(map[string]bool)

	var out []string

	add := func(c string) {
		u := toSessionURL(c, path)
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	for _, c := range p.Candidates {
		add(c)
	}

	if p.MDNS {
		browse := p.browse
		if browse == nil {
			browse = p.browseMDNS
		}

		found, err := browse(ctx)
		if err != nil {
			p.log().Debug().Err(err).Msg("mDNS browse failed")
		}

		for _, c := range found {
			add(c)
		}
	}

	return out
}

// toSessionURL turns host:port candidates into ws URLs and leaves URLs alone.
func toSessionURL(candidate, path string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ""
	}

	if strings.HasPrefix(candidate, "ws://") || strings.HasPrefix(candidate, "wss://") {
		return candidate
	}

	return "ws://" + candidate + path
}

func (p *DirectProber) browseMDNS(ctx context.Context) ([]string, error) {
	service := p.MDNSService
	if service == "" {
		service = DefaultMDNSService
	}

	wait := p.BrowseTimeout
	if wait <= 0 {
		wait = defaultBrowseTimeout
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	collected := make(chan []string, 1)

	go func(results <-chan *zeroconf.ServiceEntry) {
		var hosts []string

		for entry := range results {
			if len(entry.AddrIPv4) == 0 {
				continue
			}

			hosts = append(hosts, net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port)))
		}

		collected <- hosts
	}(entries)

	if err := resolver.Browse(ctx, service, DefaultMDNSDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse %s: %w", service, err)
	}

	<-ctx.Done()

	select {
	case hosts := <-collected:
		return hosts, nil
	case <-time.After(100 * time.Millisecond):
		return nil, nil
	}
}
