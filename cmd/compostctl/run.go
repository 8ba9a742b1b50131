package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/pkg/clients/compost"
)

const usage = `usage: compostctl <command> [flags]

commands:
  restore  -facility SP-01 -map A-001=7,A-002=1
  advance  -facility SP-01 -cycle 2026-W42
  certify  -batch <id>
  verify   -batch <id>`

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

type envConfig struct {
	APIURL  string        `env:"COMPOST_API_URL" envDefault:"http://localhost:8080"`
	Timeout time.Duration `env:"COMPOST_API_TIMEOUT" envDefault:"60s"`
}

// newClient is swapped in tests.
var newClient = func(baseURL string, timeout time.Duration) compost.Client {
	return compost.NewClient(baseURL, timeout)
}

// run executes one subcommand and returns the process exit code. Responses are printed
// as indented JSON; a bulk response with per-entry errors exits with exitPartial.
func run(ctx context.Context, args []string, stdout io.Writer) (int, error) {
	if len(args) == 0 {
		return exitFailed, errors.New(usage)
	}

	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return exitFailed, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	apiURL := fs.String("api", envCfg.APIURL, "API base URL (default: COMPOST_API_URL)")
	timeout := fs.Duration("timeout", envCfg.Timeout, "request timeout")
	facility := fs.String("facility", "", "facility code")
	mapping := fs.String("map", "", "comma-separated CODE=STATION pairs")
	cycle := fs.String("cycle", "", "cycle identifier, e.g. 2026-W42")
	batchID := fs.String("batch", "", "batch id")
	if err := fs.Parse(args[1:]); err != nil {
		return exitFailed, fmt.Errorf("%w\n%s", err, usage)
	}

	client := newClient(*apiURL, *timeout)

	switch args[0] {
	case "restore":
		parsed, err := parseMapping(*mapping)
		if err != nil {
			return exitFailed, err
		}
		resp, err := client.Restore(ctx, models.RestorationRequest{FacilityCode: *facility, Mapping: parsed})
		if err != nil {
			return exitFailed, err
		}
		return printResult(stdout, resp, len(resp.Errors))
	case "advance":
		if *facility == "" || *cycle == "" {
			return exitFailed, errors.New("advance requires -facility and -cycle")
		}
		report, err := client.AdvanceFacility(ctx, *facility, *cycle)
		if err != nil {
			return exitFailed, err
		}
		return printResult(stdout, report, len(report.Errors))
	case "certify":
		if *batchID == "" {
			return exitFailed, errors.New("certify requires -batch")
		}
		cert, err := client.Certify(ctx, *batchID)
		if err != nil {
			return exitFailed, err
		}
		return printResult(stdout, cert, 0)
	case "verify":
		if *batchID == "" {
			return exitFailed, errors.New("verify requires -batch")
		}
		v, err := client.Verify(ctx, *batchID)
		if err != nil {
			return exitFailed, err
		}
		failures := 0
		if !v.Match {
			failures = 1
		}
		return printResult(stdout, v, failures)
	default:
		return exitFailed, fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// parseMapping reads "A-001=7,A-002=1".
func parseMapping(raw string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, station, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(code) == "" {
			return nil, fmt.Errorf("invalid mapping entry %q, want CODE=STATION", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(station))
		if err != nil {
			return nil, fmt.Errorf("invalid station in %q: %w", pair, err)
		}
		out[strings.TrimSpace(code)] = n
	}
	if len(out) == 0 {
		return nil, errors.New("restore requires -map")
	}
	return out, nil
}

func printResult(w io.Writer, v any, failures int) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitFailed, fmt.Errorf("write output: %w", err)
	}
	if failures > 0 {
		return exitPartial, nil
	}
	return exitOK, nil
}
