// Package output provides formatting for observe session summaries.
package output

import (
	"time"

	"github.com/ccollicutt/logstream/pkg/session"
)

// Report is the complete session output.
type Report struct {
	// Summary provides aggregate statistics.
	Summary Summary

	// Sources holds one entry per configured source, in configuration
	// order.
	Sources []SourceReport

	// Metadata provides context about the session.
	Metadata Metadata
}

// Summary provides aggregate statistics.
type Summary struct {
	// SourcesRead is the number of sources that were observed.
	SourcesRead int

	// SourcesFailed is the number of sources that did not end cleanly.
	SourcesFailed int

	TotalRecords     uint64
	TotalAttachments uint64
	ParseErrors      uint64
	DroppedBytes     uint64
}

// SourceReport describes how one source's session went.
type SourceReport struct {
	ID       uint16
	Name     string
	Kind     string
	Location string `json:",omitempty"`

	Records      uint64
	Attachments  uint64
	LoadedBytes  uint64
	DroppedBytes uint64
	ParsedMsgs   uint64
	SkippedMsgs  uint64
	ParseErrors  uint64

	EndReason session.EndReason
	EndDetail string `json:",omitempty"`
	Duration  time.Duration
}

// Failed reports whether the source ended with an error.
func (s *SourceReport) Failed() bool {
	return s.EndReason.Failed()
}

// Metadata provides context about the session.
type Metadata struct {
	// ConfigFile is the path to the configuration file used.
	ConfigFile string

	// Store is where the session was written.
	Store string

	StartedAt time.Time
	Duration  time.Duration
}

// NewReport creates a Report from the per-source session statistics.
func NewReport(stats []session.SourceStats, meta Metadata) *Report {
	report := &Report{
		Sources:  make([]SourceReport, 0, len(stats)),
		Metadata: meta,
	}

	for _, st := range stats {
		src := SourceReport{
			ID:           st.ID,
			Name:         st.Desc.Name,
			Kind:         st.Desc.Kind,
			Location:     st.Desc.Location,
			Records:      st.Records,
			Attachments:  st.Attachments,
			LoadedBytes:  st.LoadedBytes,
			DroppedBytes: st.DroppedBytes,
			ParsedMsgs:   st.ParsedMsgs,
			SkippedMsgs:  st.SkippedMsgs,
			ParseErrors:  st.ParseErrors,
			EndReason:    st.EndReason,
			EndDetail:    st.EndDetail,
		}
		if !st.Started.IsZero() && !st.Finished.IsZero() {
			src.Duration = st.Finished.Sub(st.Started)
		}
		report.Sources = append(report.Sources, src)

		report.Summary.SourcesRead++
		if src.Failed() {
			report.Summary.SourcesFailed++
		}
		report.Summary.TotalRecords += st.Records
		report.Summary.TotalAttachments += st.Attachments
		report.Summary.ParseErrors += st.ParseErrors
		report.Summary.DroppedBytes += st.DroppedBytes
	}

	return report
}

// HasFailures returns true if any source ended with an error.
func (r *Report) HasFailures() bool {
	return r.Summary.SourcesFailed > 0
}
