// Package monitor implements the per-application worker: tag→app
// resolution with a deadline, ingress provisioning, the poll loop, state
// transitions, listener notifications and termination.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spark-monitor/internal/appmodel"
	"spark-monitor/internal/config"
	"spark-monitor/internal/ingressbuilder"
	"spark-monitor/internal/k8sclient"
	"spark-monitor/internal/report"
	"spark-monitor/internal/retry"
)

// LeakRecorder is the subset of the Leak Reaper's table a Monitor writes
// to when tag resolution times out. Satisfied by *reaper.LeakTable.
type LeakRecorder interface {
	Record(tag string, at time.Time)
}

// Spawn carries the inputs an external submitter hands to a new Monitor,
// mirroring SPEC_FULL §6's submitter inputs.
type Spawn struct {
	Tag          string
	AppID        string // optional, known in advance
	ChildProcess appmodel.ChildProcess
	Listener     appmodel.Listener
}

// Monitor is the per-application worker. Callers construct one with New
// and run its lifecycle with Start, normally from a dedicated goroutine.
type Monitor struct {
	spawn   Spawn
	cluster k8sclient.ClusterClient
	cfg     *config.Config
	leaks   LeakRecorder
	log     *slog.Logger

	resolution *resolution
	killCh     chan struct{}
	killOnce   sync.Once

	state    appmodel.State
	lastInfo *appmodel.AppInfo
}

func New(spawn Spawn, cluster k8sclient.ClusterClient, cfg *config.Config, leaks LeakRecorder, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		spawn:      spawn,
		cluster:    cluster,
		cfg:        cfg,
		leaks:      leaks,
		log:        log,
		resolution: newResolution(),
		killCh:     make(chan struct{}),
		state:      appmodel.Starting,
	}
}

// Kill requests the monitor stop: it attempts killApplication on the
// resolved app (awaiting resolution up to AppLookupTimeout). Timeouts and
// cancellations while awaiting resolution are swallowed with a warning.
func (m *Monitor) Kill(ctx context.Context) {
	m.killOnce.Do(func() {
		close(m.killCh)
	})

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.AppLookupTimeout)
	defer cancel()

	app, err := m.resolution.await(waitCtx)
	if err != nil {
		m.log.Warn("kill: resolution did not complete in time, swallowing", "tag", m.spawn.Tag, "err", err)
		return
	}

	ok, err := m.cluster.KillApplication(ctx, app)
	if err != nil {
		m.log.Warn("kill: killApplication failed", "tag", m.spawn.Tag, "err", err)
		return
	}
	if !ok {
		m.log.Warn("kill: killApplication reported failure", "tag", m.spawn.Tag)
	}
}

// Start runs the monitor's full lifecycle: resolution, ingress
// provisioning, poll loop, and termination. It returns when the monitor
// reaches a terminal state or ctx is cancelled. The child process handle
// is guaranteed to be destroyed exactly once before Start returns.
func (m *Monitor) Start(ctx context.Context) {
	destroyed := false
	destroyChild := func() {
		if !destroyed && m.spawn.ChildProcess != nil {
			m.spawn.ChildProcess.Destroy()
			destroyed = true
		}
	}
	defer destroyChild()
	defer m.emitFinalInfo()

	app, err := m.resolve(ctx)
	if err != nil {
		destroyChild()
		if errors.Is(err, context.Canceled) {
			m.transition(appmodel.Killed, "Application stopped by user")
			return
		}
		m.transition(appmodel.Failed, err.Error())
		return
	}

	if m.spawn.AppID != "" {
		app.AppID = m.spawn.AppID
	}
	if app.AppID != "" && m.spawn.Listener != nil {
		m.spawn.Listener.AppIDKnown(app.AppID)
	}

	if m.cfg.IngressCreate {
		if err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBackoff, func(ctx context.Context) error {
			return m.cluster.CreateSparkUIIngress(ctx, app, m.ingressOptions())
		}); err != nil {
			m.transition(appmodel.Failed, fmt.Sprintf("ingress provisioning failed: %v", err))
			return
		}
	}

	m.transition(appmodel.Running, "")
	m.runPollLoop(ctx, app)
}

// resolve repeatedly lists driver pods until one carries the requested
// tag, polling at PollInterval, bounded by AppLookupTimeout computed once
// at monitor start. On deadline the tag is recorded as leaked; on
// cancellation it is not (cancellation is the kill() path's concern). In
// both cases the resolution is completed with the error, and Start
// destroys the child process once resolve returns it.
func (m *Monitor) resolve(ctx context.Context) (appmodel.Application, error) {
	deadline := time.Now().Add(m.cfg.AppLookupTimeout)
	deadlineCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		apps, err := m.cluster.ListApplications(deadlineCtx)
		if err == nil {
			for _, a := range apps {
				if a.Tag == m.spawn.Tag {
					m.resolution.setResult(a)
					return a, nil
				}
			}
		} else {
			m.log.Warn("resolve: list applications failed, will retry", "tag", m.spawn.Tag, "err", err)
		}

		select {
		case <-time.After(m.cfg.PollInterval):
		case <-deadlineCtx.Done():
			if ctx.Err() != nil {
				resErr := ctx.Err()
				m.resolution.setError(resErr)
				return appmodel.Application{}, resErr
			}
			m.leaks.Record(m.spawn.Tag, time.Now())
			resErr := fmt.Errorf("resolution timeout: driver pod for tag %q never appeared within %s (submit failure or insufficient cluster capacity)", m.spawn.Tag, m.cfg.AppLookupTimeout)
			m.resolution.setError(resErr)
			return appmodel.Application{}, resErr
		case <-m.killCh:
			resErr := context.Canceled
			m.resolution.setError(resErr)
			return appmodel.Application{}, resErr
		}
	}
}

// runPollLoop fetches an Application Report each poll, translates the
// driver phase into a state, notifies the listener of state/info changes,
// and exits on a terminal state or cancellation.
func (m *Monitor) runPollLoop(ctx context.Context, app appmodel.Application) {
	for {
		rep, err := m.getReportRetried(ctx, app)
		if err != nil {
			m.transition(appmodel.Failed, err.Error())
			return
		}

		newState := rep.State()
		if newState == appmodel.Failed && rep.RawPhase() != "failed" && rep.RawPhase() != "unknown" {
			m.log.Warn("unknown pod phase", "tag", app.Tag, "phase", rep.RawPhase())
		}
		m.transition(newState, rep.Diagnostics())

		info := rep.AppInfo("")
		m.emitInfoIfChanged(info)

		if newState.Terminal() {
			return
		}

		select {
		case <-time.After(m.cfg.PollInterval):
		case <-ctx.Done():
			m.transition(appmodel.Killed, "Application stopped by user")
			return
		case <-m.killCh:
			m.transition(appmodel.Killed, "Application stopped by user")
			return
		}
	}
}

func (m *Monitor) getReportRetried(ctx context.Context, app appmodel.Application) (report.ApplicationReport, error) {
	var rep report.ApplicationReport
	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBackoff, func(ctx context.Context) error {
		var opErr error
		rep, opErr = m.cluster.GetReport(ctx, app, m.cfg.SparkLogsCacheSize, m.reportOptions())
		return opErr
	})
	return rep, err
}

// transition moves the monitor to newState and notifies the listener,
// unless already terminal (a monitor transitions at most once per poll
// and never leaves a terminal state).
func (m *Monitor) transition(newState appmodel.State, diagnostic string) {
	if m.state.Terminal() {
		return
	}
	old := m.state
	m.state = newState
	if diagnostic != "" {
		m.log.Info("state transition", "tag", m.spawn.Tag, "old", old, "new", newState, "diagnostic", diagnostic)
	}
	if old != newState && m.spawn.Listener != nil {
		m.spawn.Listener.StateChanged(old, newState)
	}
}

func (m *Monitor) emitInfoIfChanged(info appmodel.AppInfo) {
	if m.lastInfo != nil && *m.lastInfo == info {
		return
	}
	cp := info
	m.lastInfo = &cp
	if m.spawn.Listener != nil {
		m.spawn.Listener.InfoChanged(info)
	}
}

// emitFinalInfo emits one final AppInfo whose SparkUIURL is the history
// server URL for the (possibly unknown) appId, in the guaranteed-cleanup
// block.
func (m *Monitor) emitFinalInfo() {
	if m.spawn.Listener == nil {
		return
	}
	app, resolved := m.resolution.peek()
	appID := m.spawn.AppID
	if resolved && app.AppID != "" {
		appID = app.AppID
	}
	rep := report.New(nil, nil, nil, nil, m.spawn.Tag, m.reportOptions())
	info := rep.AppInfo(rep.HistoryServerURL(appID))
	m.spawn.Listener.InfoChanged(info)
}

func (m *Monitor) ingressOptions() ingressbuilder.Options {
	return ingressbuilder.Options{
		Protocol:              m.cfg.IngressProtocol,
		Host:                  m.cfg.IngressHost,
		TLSSecretName:         m.cfg.IngressTLSSecretName,
		AdditionalAnnotations: m.cfg.IngressAdditionalAnnotations,
		AdditionalConfSnippet: m.cfg.IngressAdditionalConfSnippet,
	}
}

func (m *Monitor) reportOptions() report.Options {
	return report.Options{
		IngressProtocol:   m.cfg.IngressProtocol,
		GrafanaEnabled:    m.cfg.GrafanaLokiEnabled,
		GrafanaURL:        m.cfg.GrafanaURL,
		GrafanaTimeRange:  m.cfg.GrafanaTimeRange,
		GrafanaDatasource: m.cfg.GrafanaLokiDatasource,
		HistoryServerURL:  m.cfg.UIHistoryServerURL,
	}
}
