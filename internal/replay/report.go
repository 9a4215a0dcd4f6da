package replay

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedReport is returned when the replay tool's report lacks a
	// required counter or a counter is not a number.
	ErrMalformedReport = errors.New("malformed replay report")
	// ErrInvariant is returned when the report's counters do not add up.
	ErrInvariant = errors.New("replay packet counters do not add up")
)

// Report labels emitted by tcpreplay.
const (
	labelActual     = "Actual"
	labelSuccessful = "Successful packets"
	labelFailed     = "Failed packets"
	labelDevice     = "Statistics for network device"
)

// Report holds the counters of one replay run.
type Report struct {
	Attempted  int
	Successful int
	Failed     int
	Bytes      int64
	Device     string
	// Fields holds every other labelled value, keyed by label.
	Fields map[string]string
	// Notes holds non-empty lines that carried no label.
	Notes []string
}

// ParseReport tokenizes tcpreplay's summary. Each line is "label: value";
// tabs and repeated spaces are insignificant. The attempted count comes from
// "Actual: N packets (B bytes) sent in S seconds".
func ParseReport(text string) (Report, error) {
	r := Report{Fields: make(map[string]string)}
	seen := make(map[string]bool, 3)

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			r.Notes = append(r.Notes, line)
			continue
		}
		label = strings.Join(strings.Fields(label), " ")
		value = strings.Join(strings.Fields(value), " ")

		var err error
		switch label {
		case labelActual:
			err = r.parseActual(value)
		case labelSuccessful:
			r.Successful, err = leadingInt(value)
		case labelFailed:
			r.Failed, err = leadingInt(value)
		case labelDevice:
			r.Device = trimPunct(value)
		default:
			r.Fields[label] = trimPunct(value)
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("%w: %s: %v", ErrMalformedReport, label, err)
		}
		seen[label] = true
	}
	if err := sc.Err(); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	for _, required := range []string{labelActual, labelSuccessful, labelFailed} {
		if !seen[required] {
			return Report{}, fmt.Errorf("%w: missing %q", ErrMalformedReport, required)
		}
	}
	return r, nil
}

// Check enforces attempted == successful + failed, and attempted ==
// successful when nothing failed.
func (r Report) Check() error {
	if r.Failed == 0 && r.Attempted != r.Successful {
		return fmt.Errorf("%w: %d attempted, %d successful, none failed", ErrInvariant, r.Attempted, r.Successful)
	}
	if r.Attempted != r.Successful+r.Failed {
		return fmt.Errorf("%w: %d attempted != %d successful + %d failed", ErrInvariant, r.Attempted, r.Successful, r.Failed)
	}
	return nil
}

func (r *Report) parseActual(value string) error {
	n, err := leadingInt(value)
	if err != nil {
		return err
	}
	r.Attempted = n

	// "(12000 bytes)" is optional.
	if _, rest, ok := strings.Cut(value, "("); ok {
		if b, _, ok := strings.Cut(rest, " bytes"); ok {
			if v, err := strconv.ParseInt(strings.TrimSpace(b), 10, 64); err == nil {
				r.Bytes = v
			}
		}
	}
	return nil
}

func leadingInt(value string) (int, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, errors.New("empty value")
	}
	n, err := strconv.Atoi(trimPunct(fields[0]))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", fields[0])
	}
	return n, nil
}

func trimPunct(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".,;")
}
