package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults
const (
	DefaultServer       = "http://127.0.0.1:8000"
	DefaultFilingStatus = "single"
	DefaultLogLevel     = "warn"
)

// Options is the resolved command line of one run.
type Options struct {
	Server       string
	FilingStatus string
	Withholding  string
	Sets         []string
	Finalize     bool
	OutDir       string
	Timeout      time.Duration
	LogLevel     string
	JSON         bool
	Files        []string
}

// Edit is one --set I.KEY=VALUE.
type Edit struct {
	Index int
	Key   string
	Value string
}

// LoadOptions parses args with flags taking precedence over REVIEWCTL_*
// environment variables.
func LoadOptions(args []string, stderr io.Writer) (*Options, error) {
	v := viper.New()
	v.SetEnvPrefix("REVIEWCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("reviewctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("server", DefaultServer, "Extraction server base URL")
	fs.String("filing-status", DefaultFilingStatus, "Filing status sent with the upload and the finalize request")
	fs.String("withholding", "", "Federal withholding (blank sends 0)")
	fs.StringArray("set", nil, "Edit a field before finalizing: INDEX.KEY=VALUE (repeatable, INDEX is 0-based)")
	fs.Bool("finalize", false, "Generate the final PDF after review")
	fs.String("out", ".", "Directory receiving draft_1040.pdf")
	fs.Duration("timeout", 0, "Overall HTTP timeout (0 = none)")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("json", false, "Print the rendered view as JSON")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: reviewctl [options] FILE...\n\n")
		fmt.Fprintf(stderr, "Uploads tax documents, prints the extracted fields, applies edits and\noptionally downloads the finalized draft.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	for _, name := range []string{"server", "filing-status", "withholding", "set", "finalize", "out", "timeout", "log-level", "json"} {
		_ = v.BindPFlag(name, fs.Lookup(name))
	}

	opts := &Options{
		Server:       v.GetString("server"),
		FilingStatus: v.GetString("filing-status"),
		Withholding:  v.GetString("withholding"),
		Sets:         v.GetStringSlice("set"),
		Finalize:     v.GetBool("finalize"),
		OutDir:       v.GetString("out"),
		Timeout:      v.GetDuration("timeout"),
		LogLevel:     v.GetString("log-level"),
		JSON:         v.GetBool("json"),
		Files:        fs.Args(),
	}
	// values may contain commas, so take them from the flag itself
	if fs.Changed("set") {
		opts.Sets, _ = fs.GetStringArray("set")
	}
	if opts.Server == "" {
		return nil, errors.New("--server is required")
	}
	if _, err := opts.Edits(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Edits parses the --set values grouped in command line order.
func (o *Options) Edits() ([]Edit, error) {
	edits := make([]Edit, 0, len(o.Sets))
	for _, s := range o.Sets {
		e, err := parseEdit(s)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, nil
}

func parseEdit(s string) (Edit, error) {
	target, value, ok := strings.Cut(s, "=")
	if !ok {
		return Edit{}, fmt.Errorf("invalid --set %q: want INDEX.KEY=VALUE", s)
	}
	idx, key, ok := strings.Cut(target, ".")
	if !ok || key == "" {
		return Edit{}, fmt.Errorf("invalid --set %q: want INDEX.KEY=VALUE", s)
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return Edit{}, fmt.Errorf("invalid --set %q: bad index %q", s, idx)
	}
	return Edit{Index: n, Key: key, Value: value}, nil
}
