// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lease

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/state"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// ErrLost is returned when a renewal finds the lease held by someone else.
var ErrLost = errors.New(errors.ErrCodeConflict, "leader lease lost")

// Record is the stored lease.
type Record struct {
	Holder string `json:"holder"`
	PID    int    `json:"pid"`
	// Time is the acquisition or last renewal time in unix seconds.
	Time float64 `json:"time"`
}

// At returns the record time.
func (r Record) At() time.Time {
	sec := int64(r.Time)
	return time.Unix(sec, int64((r.Time-float64(sec))*float64(time.Second)))
}

// Expired reports whether the record is older than ttl at now.
func (r Record) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.At()) > ttl
}

func (r Record) toMap() map[string]any {
	return map[string]any{
		"holder": r.Holder,
		"pid":    r.PID,
		"time":   r.Time,
	}
}

func recordFromMap(m map[string]any) (Record, error) {
	t, ok := m["time"].(float64)
	if !ok {
		return Record{}, errors.New(errors.ErrCodeInternal, "lease record has no time")
	}
	r := Record{Time: t}
	r.Holder, _ = m["holder"].(string)
	if pid, ok := m["pid"].(float64); ok {
		r.PID = int(pid)
	}
	return r, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// NewHolderID returns an identity unique to this process: the case-folded
// hostname, the pid and a random suffix.
func NewHolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", cases.Fold().String(host), os.Getpid(), uuid.NewString()[:8])
}

// Option configures a Lock.
type Option func(*Lock)

// WithKey overrides the store key.
func WithKey(key string) Option {
	return func(l *Lock) {
		if key != "" {
			l.key = key
		}
	}
}

// WithTTL sets how long a record stays valid without renewal.
func WithTTL(ttl time.Duration) Option {
	return func(l *Lock) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPollInterval sets the contention poll period.
func WithPollInterval(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithJitter sets the random delay range before the first attempt. A zero
// range disables the delay.
func WithJitter(lo, hi time.Duration) Option {
	return func(l *Lock) {
		if lo >= 0 && hi >= lo {
			l.jitterMin, l.jitterMax = lo, hi
		}
	}
}

// WithRenewInterval sets how often Do refreshes the record. Zero disables
// renewal. The default is a third of the TTL.
func WithRenewInterval(d time.Duration) Option {
	return func(l *Lock) {
		if d >= 0 {
			l.renew = d
		}
	}
}

// WithHolder overrides the holder identity.
func WithHolder(id string) Option {
	return func(l *Lock) {
		if id != "" {
			l.holder = id
		}
	}
}

// WithClock injects the clock used for record times, jitter and renewal.
func WithClock(c clock.WithTicker) Option {
	return func(l *Lock) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Lock) {
		if log != nil {
			l.log = log
		}
	}
}

// Lock is one node's handle on the leader lease.
type Lock struct {
	store     state.Store
	key       string
	ttl       time.Duration
	poll      time.Duration
	renew     time.Duration
	jitterMin time.Duration
	jitterMax time.Duration
	holder    string
	clock     clock.WithTicker
	log       *slog.Logger

	mu   sync.Mutex
	held bool
}

// New returns a lock contending on store.
func New(store state.Store, options ...Option) *Lock {
	l := &Lock{
		store:     store,
		key:       defaults.LeaseKey,
		ttl:       defaults.LeaseTTL,
		poll:      defaults.LeasePollInterval,
		renew:     -1,
		jitterMin: defaults.LeaseJitterMin,
		jitterMax: defaults.LeaseJitterMax,
		clock:     clock.RealClock{},
		log:       slog.Default(),
	}
	for _, opt := range options {
		opt(l)
	}
	if l.holder == "" {
		l.holder = NewHolderID()
	}
	if l.renew < 0 {
		l.renew = l.ttl / 3
	}
	l.log = l.log.With(slog.String("lease", l.key), slog.String("holder", l.holder))
	return l
}

// Holder returns this lock's identity.
func (l *Lock) Holder() string {
	return l.holder
}

// Held reports whether this lock believes it holds the lease.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *Lock) setHeld(v bool) {
	l.mu.Lock()
	l.held = v
	l.mu.Unlock()
	if v {
		leaseHeld.Set(1)
	} else {
		leaseHeld.Set(0)
	}
}

// TryAcquire makes one attempt. It returns false without error when a valid
// record belongs to someone else or a concurrent writer won the race.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	now := l.clock.Now()

	version := ""
	takeover := false
	rec, err := l.store.Get(ctx, l.key)
	switch {
	case state.IsNotFound(err):
	case err != nil:
		leaseAttemptsTotal.WithLabelValues("error").Inc()
		return false, err
	default:
		cur, perr := recordFromMap(rec.Data)
		if perr == nil && !cur.Expired(now, l.ttl) {
			if cur.Holder == l.holder {
				l.setHeld(true)
				return true, nil
			}
			leaseAttemptsTotal.WithLabelValues("held_elsewhere").Inc()
			return false, nil
		}
		version = rec.Version
		takeover = true
	}

	next := Record{Holder: l.holder, PID: os.Getpid(), Time: unixSeconds(now)}
	if err := l.store.SetIf(ctx, l.key, next.toMap(), version); err != nil {
		if state.IsConflict(err) {
			leaseAttemptsTotal.WithLabelValues("conflict").Inc()
			return false, nil
		}
		leaseAttemptsTotal.WithLabelValues("error").Inc()
		return false, err
	}

	leaseAttemptsTotal.WithLabelValues("acquired").Inc()
	if takeover {
		leaseTakeoversTotal.Inc()
	}
	l.setHeld(true)
	l.log.Info("acquired leader lease", slog.Bool("takeover", takeover))
	return true, nil
}

// Acquire waits a random jitter, then polls until the lease is held or ctx
// is done.
func (l *Lock) Acquire(ctx context.Context) error {
	if l.Held() {
		return nil
	}

	if d := l.jitter(); d > 0 {
		select {
		case <-l.clock.After(d):
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeTimeout, "lease not acquired", ctx.Err())
		}
	}

	err := wait.PollUntilContextCancel(ctx, l.poll, true, func(ctx context.Context) (bool, error) {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			l.log.Warn("lease store unavailable, will retry", slog.String("error", err.Error()))
			return false, nil
		}
		if !ok {
			l.log.Debug("lease is held by another node")
		}
		return ok, nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeTimeout, "lease not acquired", err)
	}
	return nil
}

func (l *Lock) jitter() time.Duration {
	if l.jitterMax <= 0 {
		return 0
	}
	span := l.jitterMax - l.jitterMin
	if span <= 0 {
		return l.jitterMin
	}
	return l.jitterMin + time.Duration(rand.Int64N(int64(span)))
}

// Renew refreshes the record time. It returns ErrLost when the record is
// gone or owned by another holder.
func (l *Lock) Renew(ctx context.Context) error {
	if !l.Held() {
		return ErrLost
	}

	rec, err := l.store.Get(ctx, l.key)
	if state.IsNotFound(err) {
		l.setHeld(false)
		return ErrLost
	}
	if err != nil {
		return err
	}
	cur, err := recordFromMap(rec.Data)
	if err != nil || cur.Holder != l.holder {
		l.setHeld(false)
		return ErrLost
	}

	cur.Time = unixSeconds(l.clock.Now())
	if err := l.store.SetIf(ctx, l.key, cur.toMap(), rec.Version); err != nil {
		if state.IsConflict(err) {
			l.setHeld(false)
			return ErrLost
		}
		return err
	}
	return nil
}

// Release deletes the record if this lock holds it and the stored holder
// still matches at the version that was read. Releasing an unheld lock is
// a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if !l.Held() {
		return nil
	}
	defer l.setHeld(false)

	rec, err := l.store.Get(ctx, l.key)
	if state.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnavailable, "failed to read lease", err)
	}
	cur, err := recordFromMap(rec.Data)
	if err != nil || cur.Holder != l.holder {
		l.log.Warn("lease was taken over, leaving record in place")
		return nil
	}
	// The record may change hands between the read and the delete.
	err = l.store.DeleteIf(ctx, l.key, rec.Version)
	if state.IsConflict(err) {
		l.log.Warn("lease was taken over, leaving record in place")
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnavailable, "failed to delete lease", err)
	}
	l.log.Info("released leader lease")
	return nil
}

// Do acquires the lease, runs fn while renewing it, and releases it on every
// exit path. If the lease is lost while fn runs, fn's context is cancelled
// and Do returns ErrLost.
func (l *Lock) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaults.LeaseReleaseTimeout)
		defer cancel()
		if err := l.Release(rctx); err != nil {
			l.log.Warn("failed to release lease", slog.String("error", err.Error()))
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if l.renew > 0 {
		stopRenew := make(chan struct{})
		renewDone := make(chan struct{})
		go l.keepAlive(runCtx, cancel, stopRenew, renewDone)
		defer func() {
			close(stopRenew)
			<-renewDone
		}()
	}

	err := fn(runCtx)
	if stderrors.Is(context.Cause(runCtx), ErrLost) {
		return ErrLost
	}
	return err
}

func (l *Lock) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, stop, done chan struct{}) {
	defer close(done)
	ticker := l.clock.NewTicker(l.renew)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			err := l.Renew(ctx)
			switch {
			case err == nil:
			case stderrors.Is(err, ErrLost):
				l.log.Error("leader lease lost")
				cancel(ErrLost)
				return
			default:
				l.log.Warn("failed to renew lease", slog.String("error", err.Error()))
			}
		}
	}
}

// Inspect returns the stored record under key.
func Inspect(ctx context.Context, store state.Store, key string) (Record, error) {
	if key == "" {
		key = defaults.LeaseKey
	}
	rec, err := store.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	return recordFromMap(rec.Data)
}

// ForceRelease deletes the record under key regardless of its holder.
func ForceRelease(ctx context.Context, store state.Store, key string) error {
	if key == "" {
		key = defaults.LeaseKey
	}
	return store.Delete(ctx, key)
}
