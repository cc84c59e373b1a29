package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"loan-approval/internal/client"
	"loan-approval/internal/loan"
	"loan-approval/internal/ml"
	"loan-approval/internal/server"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath = flag.String("model", "models/loan_model.json", "Pipeline artifact used for local scoring")
		input     = flag.String("input", "-", "Applicant JSON file, an object or an array; - reads stdin")
		remote    = flag.String("remote", "", "Score against a running server at this base URL instead")
		stream    = flag.Bool("stream", false, "With -remote, send all applicants over one websocket")
		timeout   = flag.Duration("timeout", 10*time.Second, "Remote request timeout")
		logLevel  = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	applicants, err := readApplicants(*input)
	if err != nil {
		log.Fatal().Err(err).Str("input", *input).Msg("Failed to read applicants")
	}

	var results []server.Envelope
	switch {
	case *remote != "" && *stream:
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		results, err = client.New(*remote, *timeout).PredictStream(ctx, applicants)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Stream failed")
		}
	case *remote != "":
		c := client.New(*remote, *timeout)
		for _, a := range applicants {
			res, err := c.Predict(context.Background(), a)
			results = append(results, envelope(res, err))
		}
	default:
		p := ml.NewPredictor(*modelPath, nil)
		for _, a := range applicants {
			res, err := p.Predict(a)
			results = append(results, envelope(res, err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := false
	for _, r := range results {
		failed = failed || !r.Success
		if err := enc.Encode(r); err != nil {
			log.Fatal().Err(err).Msg("Failed to write result")
		}
	}
	if failed {
		os.Exit(1)
	}
}

func envelope(res ml.Result, err error) server.Envelope {
	if err != nil {
		return server.Envelope{Success: false, Error: err.Error()}
	}
	return server.Envelope{Success: true, Result: &res}
}

// readApplicants accepts either one applicant object or an array of them.
// Every applicant is validated before anything is scored.
func readApplicants(path string) ([]loan.Applicant, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode applicant array: %w", err)
		}
		out := make([]loan.Applicant, 0, len(raw))
		for i, msg := range raw {
			a, err := loan.DecodeApplicant(bytes.NewReader(msg))
			if err != nil {
				return nil, fmt.Errorf("applicant %d: %w", i, err)
			}
			out = append(out, a)
		}
		return out, nil
	}

	a, err := loan.DecodeApplicant(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return []loan.Applicant{a}, nil
}
