// Command reviewctl runs the upload, review and finalize workflow against an
// extraction server from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/rosy-tax/reviewer/internal/extraction"
	"github.com/rosy-tax/reviewer/internal/logger"
	"github.com/rosy-tax/reviewer/internal/models"
	"github.com/rosy-tax/reviewer/internal/review"
)

func main() {
	opts, err := LoadOptions(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "reviewctl:", err)
		os.Exit(2)
	}

	_ = logger.Init(logger.Options{Level: opts.LogLevel, Pretty: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := extraction.NewClient(opts.Server, extraction.WithTimeout(opts.Timeout))
	if err := run(ctx, opts, client, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "reviewctl:", err)
		os.Exit(1)
	}
}

// run uploads opts.Files, prints the review, applies the edits and
// optionally finalizes into opts.OutDir.
func run(ctx context.Context, opts *Options, backend review.Backend, stdout, stderr io.Writer) error {
	edits, err := opts.Edits()
	if err != nil {
		return err
	}

	req := models.UploadRequest{
		FilingStatus: opts.FilingStatus,
		Withholding:  opts.Withholding,
	}
	for _, path := range opts.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		req.Files = append(req.Files, models.UploadFile{Name: filepath.Base(path), Data: data})
	}

	c := review.NewController(backend, dirSink{dir: opts.OutDir}, review.Options{
		SessionID: "cli",
		OnStatus: func(status string) {
			fmt.Fprintln(stderr, "»", status)
		},
	})

	if _, err := c.Submit(ctx, req); err != nil {
		return err
	}

	for _, e := range edits {
		if err := c.Save(ctx, e.Index, map[string]string{e.Key: e.Value}); err != nil {
			return fmt.Errorf("--set %d.%s: %w", e.Index, e.Key, err)
		}
	}

	if opts.Finalize {
		info, err := c.Finalize(ctx, opts.FilingStatus)
		if err != nil {
			return err
		}
		log.Info().Str("file", filepath.Join(opts.OutDir, info.Name)).Int64("bytes", info.Size).Msg("draft written")
	}

	if opts.JSON {
		return printJSON(stdout, c.Render())
	}
	printView(stdout, c.Render())
	return nil
}
