package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/archive"
)

// filterFlags are the record selection flags shared by archive create and
// archive retrieve.
type filterFlags struct {
	from       string
	to         string
	minSize    int64
	maxSize    int64
	maxRecords int
	text       string
	attrs      []string
}

func (f *filterFlags) register(cmd *cobra.Command, withMaxRecords bool) {
	cmd.Flags().StringVar(&f.from, "from", "", "only records created at or after this time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "only records created at or before this time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().Int64Var(&f.minSize, "min-size", -1, "minimum record size in bytes")
	cmd.Flags().Int64Var(&f.maxSize, "max-size", -1, "maximum record size in bytes")
	cmd.Flags().StringVar(&f.text, "text", "", "case-insensitive text match on id and attributes")
	cmd.Flags().StringArrayVar(&f.attrs, "attr", nil, "attribute equality filter key=value (repeatable)")
	if withMaxRecords {
		cmd.Flags().IntVar(&f.maxRecords, "max-records", 0, "archive at most this many records (0 = all)")
	}
}

func (f *filterFlags) filters() (archive.Filters, error) {
	var out archive.Filters
	var err error

	if out.From, err = parseTimeFlag("from", f.from); err != nil {
		return out, err
	}
	if out.To, err = parseTimeFlag("to", f.to); err != nil {
		return out, err
	}
	if f.minSize >= 0 {
		v := f.minSize
		out.MinSize = &v
	}
	if f.maxSize >= 0 {
		v := f.maxSize
		out.MaxSize = &v
	}
	out.MaxRecords = f.maxRecords
	out.Text = strings.TrimSpace(f.text)
	if out.Attributes, err = parseAttrs(f.attrs); err != nil {
		return out, err
	}
	return out, nil
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, archive.Validationf("flags", "--%s: %q is not an RFC 3339 time or YYYY-MM-DD date", name, value)
}

// parseDuration accepts Go durations plus a whole-day suffix, e.g. "30d".
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day count %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}

func parseAttrs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, archive.Validationf("flags", "--attr %q must be key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}
