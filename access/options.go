// Package access implements the index access method's external operation
// contract: build/insert/begin_scan/rescan/get_tuple/end_scan/bulk_delete/
// vacuum, layered over the vchordrq and vchordg packages and the hostsim
// buffer-manager stand-in. One struct owns a *bufmgr.Mgr and exposes the
// host-facing verbs, choosing between the two index kinds behind a single
// contract.
package access

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Options is the TOML-facing form of an index's build/relation options.
// Distance and Kind are kept as plain strings and Bits as a plain int at
// the option layer, so a malformed reloptions string fails with a
// readable diagnostic rather than an unmarshal error against a custom
// enum type.
type Options struct {
	Dims     int     `toml:"dims"`
	Distance string  `toml:"distance"`  // "l2" | "dot"
	Bits     int     `toml:"bits"`      // 1, 4, or 8
	Residual bool    `toml:"residual"`
	Kind     string  `toml:"kind"` // "ivf" | "graph"

	// IVF-only
	Height         int   `toml:"height"`
	Probes         []int `toml:"probes"`
	EagerSearch    bool  `toml:"eager_search"`
	Confidence     float64 `toml:"confidence"`

	// Graph-only
	M              int     `toml:"m"`
	Alpha          float32 `toml:"alpha"`
	EfConstruction int     `toml:"ef_construction"`
	EfSearch       int     `toml:"ef_search"`

	RerankInHeap bool `toml:"rerank_in_heap"`
	Epsilon      float32 `toml:"epsilon"`
}

// ParseOptions decodes a relation's reloptions TOML text and validates it.
// Malformed TOML or a failed validation rule is a caller bug surfaced
// immediately as a non-nil error, never a panic — unlike the corruption
// paths deeper in the engine, this one is reachable from untrusted DDL
// input.
func ParseOptions(text string) (Options, error) {
	var o Options
	if _, err := toml.Decode(text, &o); err != nil {
		return Options{}, fmt.Errorf("access: invalid options: %w", err)
	}
	o.setDefaults()
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

func (o *Options) setDefaults() {
	if o.Bits == 0 {
		o.Bits = 1
	}
	if o.Distance == "" {
		o.Distance = "l2"
	}
	if o.Kind == "" {
		o.Kind = "ivf"
	}
	if o.Height == 0 {
		o.Height = 1
	}
	if o.Epsilon == 0 {
		o.Epsilon = 1.9
	}
	if o.Confidence == 0 {
		o.Confidence = 0.95
	}
	if o.Kind == "graph" {
		if o.M == 0 {
			o.M = 32
		}
		if o.Alpha == 0 {
			o.Alpha = 1.0
		}
		if o.EfConstruction == 0 {
			o.EfConstruction = 100
		}
		if o.EfSearch == 0 {
			o.EfSearch = 64
		}
	}
}

// Validate enforces the option table: 0 < dims <= 60000; distance kind in
// {l2, dot}; bits in {1, 4, 8}; m >= 1, alpha >= 1.0 for graph.
func (o Options) Validate() error {
	if o.Dims <= 0 || o.Dims > 60000 {
		return fmt.Errorf("access: dims must be in (0, 60000], got %d", o.Dims)
	}
	switch o.Distance {
	case "l2", "dot":
	default:
		return fmt.Errorf("access: distance must be \"l2\" or \"dot\", got %q", o.Distance)
	}
	switch o.Bits {
	case 1, 4, 8:
	default:
		return fmt.Errorf("access: bits must be 1, 4, or 8, got %d", o.Bits)
	}
	switch o.Kind {
	case "ivf", "graph":
	default:
		return fmt.Errorf("access: kind must be \"ivf\" or \"graph\", got %q", o.Kind)
	}
	if o.Kind == "graph" {
		if o.M < 1 {
			return fmt.Errorf("access: m must be >= 1, got %d", o.M)
		}
		if o.Alpha < 1.0 {
			return fmt.Errorf("access: alpha must be >= 1.0, got %f", o.Alpha)
		}
	}
	return nil
}
