package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup returns the trimmed value of name and whether it is set to
// something other than whitespace.
func Lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func String(name, def string) string {
	if v, ok := Lookup(name); ok {
		return v
	}
	return def
}

func Int(name string, def int) int {
	v, ok := Lookup(name)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Float(name string, def float64) float64 {
	v, ok := Lookup(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Bool accepts 1/true/yes/on and 0/false/no/off, case-insensitively.
func Bool(name string, def bool) bool {
	v, ok := Lookup(name)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// Duration parses Go duration syntax ("250ms"); a bare integer is read in
// units of unit.
func Duration(name string, unit, def time.Duration) time.Duration {
	v, ok := Lookup(name)
	if !ok {
		return def
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * unit
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
