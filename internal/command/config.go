package command

import (
	"sort"

	"github.com/nishisan-dev/redlet/internal/pubsub"
)

// Config is the live CONFIG GET/SET parameter table.
// It is a flat string map seeded with a fixed set of defaults. Set stores
// any key, known or not, and nothing outside CONFIG GET reads the values,
// so CONFIG SET changes only what later CONFIG GET calls report.
type Config struct {
	values map[string]string
}

func NewConfig() *Config {
	return &Config{values: map[string]string{
		"maxmemory":           "0",
		"appendonly":          "no",
		"save":                "",
		"timeout":             "0",
		"maxmemory-policy":    "noeviction",
		"list-max-chunk-size": "64",
	}}
}

// Get returns every (key, value) pair whose key matches the glob pattern,
// reusing the pub/sub bus's matcher rather than a second implementation.
func (c *Config) Get(pattern string) [][2]string {
	var out [][2]string
	for k, v := range c.values {
		if pubsub.Match(pattern, k) {
			out = append(out, [2]string{k, v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func (c *Config) Set(key, value string) {
	c.values[key] = value
}
