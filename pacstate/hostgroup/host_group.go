package hostgroup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/steelcutops/pacstate/pacstate/host"
	"github.com/steelcutops/pacstate/pacstate/reconcile"
)

// DefaultConcurrency bounds parallel hosts when no limit is given.
const DefaultConcurrency = 10

type HostGroup struct {
	sync.RWMutex
	Hosts map[string]*host.Host
}

// HostResult is the outcome of one host's reconciliation.
type HostResult struct {
	Hostname string           `json:"host"`
	Result   reconcile.Result `json:"result"`
	Err      error            `json:"-"`
}

// NewHostGroup creates a new HostGroup with the given hosts.
func NewHostGroup(hosts ...*host.Host) *HostGroup {
	hostMap := make(map[string]*host.Host)
	for _, h := range hosts {
		hostMap[h.Hostname] = h
	}
	return &HostGroup{Hosts: hostMap}
}

// AddHost adds a host to the HostGroup.
func (hg *HostGroup) AddHost(h *host.Host) {
	hg.Lock()
	defer hg.Unlock()
	hg.Hosts[h.Hostname] = h
}

// RemoveHost removes a host from the HostGroup by its hostname.
func (hg *HostGroup) RemoveHost(hostname string) {
	hg.Lock()
	defer hg.Unlock()
	delete(hg.Hosts, hostname)
}

// HasHost checks if a host with the given hostname exists in the HostGroup.
func (hg *HostGroup) HasHost(hostname string) bool {
	hg.RLock()
	defer hg.RUnlock()
	_, exists := hg.Hosts[hostname]
	return exists
}

// Len returns the number of hosts in the group.
func (hg *HostGroup) Len() int {
	hg.RLock()
	defer hg.RUnlock()
	return len(hg.Hosts)
}

// Each runs action on every host with at most concurrency hosts in flight.
// Failures are collected per host; one host failing never stops the others.
func (hg *HostGroup) Each(ctx context.Context, concurrency int, action func(ctx context.Context, h *host.Host) error) error {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	sem := make(chan struct{}, concurrency)
	errCh := make(chan error, hg.Len())
	var wg sync.WaitGroup

	hg.RLock()
	for _, hst := range hg.Hosts {
		wg.Add(1)
		go func(h *host.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := action(ctx, h); err != nil {
				errCh <- fmt.Errorf("host %s: %w", h.Hostname, err)
			}
		}(hst)
	}
	hg.RUnlock()

	wg.Wait()
	close(errCh)

	var result *multierror.Error
	for err := range errCh {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Reconcile runs the same request on every host. Results come back sorted
// by hostname; the error aggregates every failed host.
func (hg *HostGroup) Reconcile(ctx context.Context, req reconcile.Request, cfg reconcile.Config, concurrency int) ([]HostResult, error) {
	var mu sync.Mutex
	results := make([]HostResult, 0, hg.Len())

	err := hg.Each(ctx, concurrency, func(ctx context.Context, h *host.Host) error {
		result, err := h.Reconciler(cfg).Run(ctx, req)

		mu.Lock()
		results = append(results, HostResult{Hostname: h.Hostname, Result: result, Err: err})
		mu.Unlock()

		return err
	})

	sort.Slice(results, func(i, j int) bool { return results[i].Hostname < results[j].Hostname })
	return results, err
}
