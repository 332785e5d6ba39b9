package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/reglet-dev/egress/internal/domain/outbound"
)

// AllowedHostsFunc computes an instance's allow-list.
type AllowedHostsFunc func(ctx context.Context) (*outbound.AllowedHostsConfig, error)

type allowedHostsResult struct {
	config *outbound.AllowedHostsConfig
	err    error
}

// SharedAllowedHosts computes an allow-list at most once and hands every
// caller the same outcome. Errors are cached exactly like successes.
// The computation does not observe caller cancellation.
type SharedAllowedHosts struct {
	compute AllowedHostsFunc
	result  atomic.Pointer[allowedHostsResult]
	group   singleflight.Group
}

const sharedAllowedHostsKey = "allowed_hosts"

// NewSharedAllowedHosts wraps compute. Nothing runs until Start or Get.
func NewSharedAllowedHosts(compute AllowedHostsFunc) *SharedAllowedHosts {
	return &SharedAllowedHosts{compute: compute}
}

// Start begins the computation in the background if it has not begun.
func (s *SharedAllowedHosts) Start(ctx context.Context) {
	if s.result.Load() != nil {
		return
	}
	s.group.DoChan(sharedAllowedHostsKey, s.run(ctx))
}

// Get waits for the computation. If ctx ends first, Get returns ctx.Err()
// and the computation keeps running for other callers.
func (s *SharedAllowedHosts) Get(ctx context.Context) (*outbound.AllowedHostsConfig, error) {
	// Fast path: already computed
	if r := s.result.Load(); r != nil {
		return r.config, r.err
	}

	ch := s.group.DoChan(sharedAllowedHostsKey, s.run(ctx))
	select {
	case res := <-ch:
		r := res.Val.(*allowedHostsResult)
		return r.config, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the outcome is available.
func (s *SharedAllowedHosts) Done() bool {
	return s.result.Load() != nil
}

func (s *SharedAllowedHosts) run(ctx context.Context) func() (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	return func() (interface{}, error) {
		// Double-check after acquiring singleflight
		if r := s.result.Load(); r != nil {
			return r, nil
		}

		r := s.safeCompute(detached)
		s.result.Store(r)
		return r, nil
	}
}

func (s *SharedAllowedHosts) safeCompute(ctx context.Context) (r *allowedHostsResult) {
	defer func() {
		if p := recover(); p != nil {
			r = &allowedHostsResult{err: fmt.Errorf("allowed hosts computation panicked: %v", p)}
		}
	}()
	config, err := s.compute(ctx)
	return &allowedHostsResult{config: config, err: err}
}
