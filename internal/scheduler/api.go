package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "vaxbot/pkg/logx"
)

// AddCron registers (or replaces) a named cron task.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddCronOpt(name, spec, timeout, TaskOptions{}, job)
}

func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	// Upsert by name: remove previous schedule with the same name to prevent duplicates
	// across hot-reloads or repeated registrations.
	_ = s.removeScheduleLocked(name)
	id := fmt.Sprintf("cron:%d", time.Now().UnixNano())
	opt = opt.withDefaults(s.cfg)
	d := scheduleDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		job:     job,
		opt:     opt,
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		err := s.addCronLocked(&s.defs[len(s.defs)-1])
		if err != nil {
			s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		} else {
			s.log.Debug("schedule registered", logx.String("name", name), logx.String("id", id), logx.String("spec", spec), logx.Duration("timeout", d.timeout))
		}
		return id, err
	}
	// Scheduler not started/enabled yet: keep definition and register when Start() runs.
	return id, nil
}

// AddDaily registers a task that runs every day at HH:MM (scheduler timezone).
func (s *Service) AddDaily(name string, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	spec := fmt.Sprintf("%d %d * * *", m, h)
	return s.AddCronOpt(name, spec, timeout, TaskOptions{}, job)
}

// AddOnce registers (or replaces) a named one-shot timer that fires at the
// given instant. A past instant fires immediately. One name holds at most one
// pending timer: re-registering moves the fire time.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}

	// snapshot location + default timeout config under s.mu
	s.mu.Lock()
	loc := s.loc
	cfg := s.cfg
	s.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	runAt := at.In(loc)
	resolved := timeout
	if resolved <= 0 && cfg.DefaultTimeout > 0 {
		resolved = cfg.DefaultTimeout
	}

	localName := name
	localAt := runAt

	s.tmu.Lock()
	// upsert: stop existing timer with the same name
	if t, ok := s.timers[localName]; ok {
		_ = t.Stop()
		delete(s.timers, localName)
	}
	// bump version to ignore stale callbacks from previously scheduled timers
	ver := s.onceVer[localName] + 1
	s.onceVer[localName] = ver

	s.onceAt[localName] = localAt
	s.onceTimeout[localName] = resolved
	s.onceJob[localName] = job

	delay := time.Until(localAt)
	if delay < 0 {
		delay = 0
	}
	localVer := ver
	timer := time.AfterFunc(delay, func() {
		// If the task was removed or replaced, ignore this callback.
		s.tmu.Lock()
		curVer := s.onceVer[localName]
		jobNow := s.onceJob[localName]
		timeoutNow := s.onceTimeout[localName]
		_, okAt := s.onceAt[localName]
		if curVer != localVer || jobNow == nil || !okAt {
			s.tmu.Unlock()
			return
		}
		// cleanup persisted definition first (prevents double-exec on restart)
		delete(s.timers, localName)
		delete(s.onceAt, localName)
		delete(s.onceTimeout, localName)
		delete(s.onceJob, localName)
		delete(s.onceVer, localName)
		s.tmu.Unlock()

		// enqueue task
		s.mu.Lock()
		cfgNow := s.cfg
		s.mu.Unlock()
		s.enqueue(task{
			id:      fmt.Sprintf("once:%d", time.Now().UnixNano()),
			name:    localName,
			timeout: timeoutNow,
			run:     jobNow,
			opt:     TaskOptions{}.withDefaults(cfgNow),
			state:   &runState{},
		})
	})
	s.timers[localName] = timer
	s.tmu.Unlock()

	return localName, nil
}

// OnceAt reports the pending fire time of a named one-shot timer, if any.
func (s *Service) OnceAt(name string) (time.Time, bool) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	at, ok := s.onceAt[name]
	return at, ok
}

// Remove unschedules all schedules with the given name. It returns true if something was removed.
// Safe to call even when scheduler is not started/enabled (it will still remove persisted defs).
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false

	// Remove cron schedules.
	s.mu.Lock()
	removed = s.removeScheduleLocked(name) || removed
	s.mu.Unlock()

	// Remove one-time timers/definitions.
	s.tmu.Lock()
	if t, ok := s.timers[name]; ok {
		_ = t.Stop()
		delete(s.timers, name)
		removed = true
	}
	if _, ok := s.onceAt[name]; ok {
		delete(s.onceAt, name)
		removed = true
	}
	if _, ok := s.onceTimeout[name]; ok {
		delete(s.onceTimeout, name)
		removed = true
	}
	if _, ok := s.onceJob[name]; ok {
		delete(s.onceJob, name)
		removed = true
	}
	if _, ok := s.onceVer[name]; ok {
		delete(s.onceVer, name)
		removed = true
	}
	s.tmu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters them from cron if running.
// Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				s.defs[i].entryID = 0
				removed = true
			}
		}
	}
	// remove from persisted defs regardless of running state
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	if n < len(s.defs) {
		s.defs = s.defs[:n]
	}
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	eid, err := s.c.AddFunc(d.spec, func() {
		if d.opt.Overlap == OverlapSkipIfRunning {
			d.state.mu.Lock()
			running := d.state.running
			d.state.mu.Unlock()
			if running {
				s.log.Debug("schedule skipped (previous run still running)", logx.String("task", d.name))
				return
			}
		}
		s.enqueue(task{id: d.id, name: d.name, timeout: d.timeout, run: d.job, opt: d.opt, state: d.state})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

// rebuildOnceTimersLocked recreates runtime timers from the persisted once definitions.
// Call with s.mu held.
func (s *Service) rebuildOnceTimersLocked() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	// stop any existing timers (should already be empty after Stop())
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}

	for name, runAt := range s.onceAt {
		job := s.onceJob[name]
		if job == nil {
			delete(s.onceAt, name)
			delete(s.onceTimeout, name)
			delete(s.onceJob, name)
			delete(s.onceVer, name)
			continue
		}
		ver := s.onceVer[name]
		if ver == 0 {
			ver = 1
			s.onceVer[name] = ver
		}
		localName := name
		localAt := runAt
		localVer := ver
		delay := time.Until(localAt)
		if delay < 0 {
			delay = 0
		}
		tmr := time.AfterFunc(delay, func() {
			// if the task was removed or replaced, ignore
			s.tmu.Lock()
			curVer := s.onceVer[localName]
			jobNow := s.onceJob[localName]
			timeoutNow := s.onceTimeout[localName]
			_, okAt := s.onceAt[localName]
			if curVer != localVer || jobNow == nil || !okAt {
				s.tmu.Unlock()
				return
			}
			delete(s.timers, localName)
			delete(s.onceAt, localName)
			delete(s.onceTimeout, localName)
			delete(s.onceJob, localName)
			delete(s.onceVer, localName)
			s.tmu.Unlock()

			s.mu.Lock()
			cfgNow := s.cfg
			s.mu.Unlock()
			s.enqueue(task{
				id:      fmt.Sprintf("once:%d", time.Now().UnixNano()),
				name:    localName,
				timeout: timeoutNow,
				run:     jobNow,
				opt:     TaskOptions{}.withDefaults(cfgNow),
				state:   &runState{},
			})
		})
		s.timers[localName] = tmr
	}
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
