// Package appmodel holds the data types shared across the cluster client,
// monitor, reaper and report components: the Application identity, its
// state machine, and the Kubernetes label/annotation vocabulary that ties
// driver pods back to a submission tag.
package appmodel

import "strings"

// Kubernetes label and annotation keys produced and consumed across the
// monitor. Kept as constants so every package spells them the same way.
const (
	LabelAppSelector = "spark-app-selector"
	LabelAppTag      = "spark-app-tag"
	LabelRole        = "spark-role"
	LabelExecID      = "spark-exec-id"
	LabelUIURL       = "spark-ui-url"
	LabelCreatedBy   = "created-by"

	CreatedByValue = "livy"

	RoleDriver   = "driver"
	RoleExecutor = "executor"
)

// Application identifies one monitored Spark submission.
type Application struct {
	Tag       string
	Namespace string
	AppID     string
	DriverPod *PodRef
}

// PodRef is the minimal identity a monitored pod needs: enough to build an
// OwnerReference and to re-fetch the live object.
type PodRef struct {
	Name string
	UID  string
}

// State is the Application's lifecycle state. Finished, Failed and Killed
// are terminal.
type State int

const (
	Starting State = iota
	Running
	Finished
	Failed
	Killed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	case Failed:
		return "Failed"
	case Killed:
		return "Killed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is one of Finished, Failed or Killed.
func (s State) Terminal() bool {
	switch s {
	case Finished, Failed, Killed:
		return true
	default:
		return false
	}
}

// PhaseToState maps a Kubernetes pod phase to an Application State,
// case-insensitively. Any phase outside the four known values maps to
// Failed; callers are expected to log the raw phase as a diagnostic in
// that case.
func PhaseToState(phase string) State {
	switch strings.ToLower(phase) {
	case "pending":
		return Starting
	case "running":
		return Running
	case "succeeded":
		return Finished
	case "failed":
		return Failed
	default:
		return Failed
	}
}

// AppInfo is the subset of report-derived fields surfaced to a listener.
// Two AppInfo values are compared by equality to decide whether to emit a
// new infoChanged event.
type AppInfo struct {
	DriverLogURL     string
	TrackingURL      string
	ExecutorsLogURLs string
	SparkUIURL       string
}

// Listener receives lifecycle notifications from a Monitor. Implementations
// must not block: callbacks run on the monitor's own goroutine.
type Listener interface {
	AppIDKnown(appID string)
	StateChanged(old, new State)
	InfoChanged(info AppInfo)
}

// ChildProcess is the submission-side process handle a Monitor tears down
// on termination. Its implementation (spawning spark-submit, buffering
// stdout/stderr) lives outside this module.
type ChildProcess interface {
	Destroy()
	InputLines() []string
	ErrorLines() []string
}
