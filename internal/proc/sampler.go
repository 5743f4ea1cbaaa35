// Package proc samples operating-system statistics for the processes
// behind local sessions and records them as typed session stats.
package proc

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	sberr "switchboard/internal/errors"
	"switchboard/session"
	"switchboard/util"
)

// Stat keys written by the sampler.
const (
	StatCPUPercent = "cpuPercent"
	StatRSSBytes   = "rssBytes"
)

// DefaultInterval is the sampling period when none is configured.
const DefaultInterval = 5 * time.Second

var errProcessGone = errors.New("process is gone")

// Target is the slice of the session registry the sampler writes to.
// *session.Registry satisfies it.
type Target interface {
	SetStat(id, key string, v session.StatValue) error
	SetWorkingDir(id, dir string) error
}

// Sampler periodically reads CPU and memory usage of one process and
// records them on one session.  The daemon starts one per local
// session; remote sessions carry no local process to observe.
type Sampler struct {
	SessionID string
	PID       int32
	Interval  time.Duration
	Logger    *util.Logger

	// TrackCwd mirrors the process working directory into the session.
	// Off unless the sampled process is the session's own shell; the
	// daemon's cwd says nothing about a session it merely hosts.
	TrackCwd bool

	proc *process.Process
}

// Run samples until ctx is cancelled, the process disappears, or the
// session is removed from the registry.  Meant to be started as
// `go s.Run(ctx, reg)` once the session enters running.
func (s *Sampler) Run(ctx context.Context, target Target) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	p, err := process.NewProcessWithContext(ctx, s.PID)
	if err != nil {
		s.Logger.Debug("proc sampler: pid %d: %v", s.PID, err)
		return
	}
	s.proc = p

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.sampleOnce(ctx, target); err != nil {
			if sberr.IsUnknownSession(err) {
				s.Logger.Debug("proc sampler: session %s ended", s.SessionID)
			} else {
				s.Logger.Debug("proc sampler: session %s: %v", s.SessionID, err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sampleOnce reads one round of stats.  Individual probe failures are
// tolerated (not every platform exposes every value); only a vanished
// process or a vanished session stops the loop.
func (s *Sampler) sampleOnce(ctx context.Context, target Target) error {
	running, err := s.proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return errProcessGone
	}

	if cpu, err := s.proc.PercentWithContext(ctx, 0); err == nil {
		if err := target.SetStat(s.SessionID, StatCPUPercent, session.FloatStat(cpu)); err != nil {
			return err
		}
	}
	if mi, err := s.proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		if err := target.SetStat(s.SessionID, StatRSSBytes, session.IntStat(int64(mi.RSS))); err != nil {
			return err
		}
	}
	if s.TrackCwd {
		if cwd, err := s.proc.CwdWithContext(ctx); err == nil && cwd != "" {
			if err := target.SetWorkingDir(s.SessionID, cwd); err != nil {
				return err
			}
		}
	}
	return nil
}
