package command

import (
	gometrics "github.com/rcrowley/go-metrics"
	"sort"
	"time"
)

// CommandStats is a latency snapshot of one command
type CommandStats struct {
	Command string        `json:"command"`
	Count   int64         `json:"count"`
	Mean    time.Duration `json:"mean"`
	P50     time.Duration `json:"p50"`
	P99     time.Duration `json:"p99"`
	Max     time.Duration `json:"max"`
}

// Stats is a snapshot of the dispatch statistics of a protocol
type Stats struct {
	Commands  []CommandStats `json:"commands"`
	NotMapped int64          `json:"notMapped"`
	Errors    int64          `json:"errors"`
}

// dispatchStats keeps one timer per command in a registry owned by the protocol
type dispatchStats struct {
	registry  gometrics.Registry
	notMapped gometrics.Counter
	errors    gometrics.Counter
}

func newDispatchStats() *dispatchStats {
	registry := gometrics.NewRegistry()
	return &dispatchStats{
		registry:  registry,
		notMapped: gometrics.GetOrRegisterCounter("dispatch.notmapped", registry),
		errors:    gometrics.GetOrRegisterCounter("dispatch.errors", registry),
	}
}

func timerName(command string) string {
	return "command." + command + ".latency"
}

func (s *dispatchStats) register(command string) {
	gometrics.GetOrRegisterTimer(timerName(command), s.registry)
}

func (s *dispatchStats) observe(command string, d time.Duration) {
	gometrics.GetOrRegisterTimer(timerName(command), s.registry).Update(d)
}

// Stats returns a snapshot of the dispatch statistics
func (p *Protocol[C, K, R]) Stats() Stats {
	stats := Stats{
		NotMapped: p.stats.notMapped.Count(),
		Errors:    p.stats.errors.Count(),
	}

	for _, cmd := range p.Commands() {
		name := p.commandName(cmd)
		timer, ok := p.stats.registry.Get(timerName(name)).(gometrics.Timer)
		if !ok {
			continue
		}
		snap := timer.Snapshot()
		stats.Commands = append(stats.Commands, CommandStats{
			Command: name,
			Count:   snap.Count(),
			Mean:    time.Duration(snap.Mean()),
			P50:     time.Duration(snap.Percentile(0.5)),
			P99:     time.Duration(snap.Percentile(0.99)),
			Max:     time.Duration(snap.Max()),
		})
	}

	sort.Slice(stats.Commands, func(i, j int) bool {
		return stats.Commands[i].Count > stats.Commands[j].Count
	})
	return stats
}

// Registry exposes the metrics registry, e.g. for gometrics.Log
func (p *Protocol[C, K, R]) Registry() gometrics.Registry {
	return p.stats.registry
}
