package detector

import (
	"regexp"

	"github.com/ccollicutt/logstream/pkg/parser"
)

// Format is a timestamp format the detector knows. Pattern's first
// capture group holds the timestamp; Layout is a Go time layout or one
// of the parser's epoch layouts.
type Format struct {
	Name      string
	Pattern   string
	Layout    string
	Ambiguous bool // MM/DD vs DD/MM cannot be told apart

	re *regexp.Regexp
}

var builtinFormats = []Format{
	{Name: "ISO 8601 with timezone", Pattern: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[+-]\d{2}:\d{2})`, Layout: "2006-01-02T15:04:05-07:00"},
	{Name: "ISO 8601 with Z (UTC)", Pattern: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)`, Layout: "2006-01-02T15:04:05Z"},
	{Name: "ISO 8601 with milliseconds and timezone", Pattern: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}[+-]\d{2}:\d{2})`, Layout: "2006-01-02T15:04:05.000-07:00"},
	{Name: "ISO 8601 with milliseconds and Z", Pattern: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z)`, Layout: "2006-01-02T15:04:05.000Z"},
	{Name: "ISO 8601 with milliseconds", Pattern: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3})`, Layout: "2006-01-02T15:04:05.000"},
	{Name: "ISO 8601", Pattern: `^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})`, Layout: "2006-01-02T15:04:05"},
	{Name: "Bracketed datetime", Pattern: `^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]`, Layout: "2006-01-02 15:04:05"},
	{Name: "Syslog with year", Pattern: `^(\w{3}\s+\d{1,2}\s+\d{4}\s+\d{2}:\d{2}:\d{2})`, Layout: "Jan 2 2006 15:04:05"},
	{Name: "Syslog (BSD)", Pattern: `^(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})`, Layout: "Jan 2 15:04:05"},
	{Name: "Apache/NGINX CLF", Pattern: `\[(\d{2}/\w{3}/\d{4}:\d{2}:\d{2}:\d{2}\s+[+-]\d{4})\]`, Layout: "02/Jan/2006:15:04:05 -0700"},
	{Name: "Apache error log", Pattern: `^\[(\w{3} \w{3} \d{2} \d{2}:\d{2}:\d{2} \d{4})\]`, Layout: "Mon Jan 02 15:04:05 2006"},
	{Name: "Spark/Hadoop short date", Pattern: `^(\d{2}/\d{2}/\d{2} \d{2}:\d{2}:\d{2})`, Layout: "06/01/02 15:04:05"},
	{Name: "HDFS compact", Pattern: `^(\d{6} \d{6})`, Layout: "060102 150405"},
	{Name: "Python logging", Pattern: `^(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2},\d{3})`, Layout: "2006-01-02 15:04:05,000"},
	{Name: "Log4j/Java logging", Pattern: `^(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}\.\d{3})`, Layout: "2006-01-02 15:04:05.000"},
	{Name: "Datetime (space-separated)", Pattern: `^(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`, Layout: "2006-01-02 15:04:05"},
	{Name: "Kubernetes JSON timestamp", Pattern: `"time":"(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z)"`, Layout: "2006-01-02T15:04:05.999999999Z"},
	{Name: "Unix timestamp (seconds)", Pattern: `^(\d{10})(?:\s|$|\])`, Layout: parser.LayoutUnixSeconds},
	{Name: "Unix timestamp (milliseconds)", Pattern: `^(\d{13})(?:\s|$|\])`, Layout: parser.LayoutUnixMillis},
	{Name: "US date format (MM/DD/YYYY)", Pattern: `^(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2})`, Layout: "01/02/2006 15:04:05", Ambiguous: true},
}

// Formats returns fresh copies of the built-in formats, most specific
// first.
func Formats() []*Format {
	out := make([]*Format, len(builtinFormats))
	for i := range builtinFormats {
		f := builtinFormats[i]
		f.re = regexp.MustCompile(f.Pattern)
		out[i] = &f
	}
	return out
}

// Regexp returns the compiled pattern.
func (f *Format) Regexp() *regexp.Regexp {
	return f.re
}
