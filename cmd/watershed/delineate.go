package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/config"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/view"
	"github.com/mohammed-shakir/watershed-gateway/internal/watershed"
)

type delineateOptions struct {
	wkid   int
	signIn bool
}

func newDelineateCommand(root *rootOptions) *cobra.Command {
	opts := &delineateOptions{wkid: model.WKIDWGS84}
	cmd := &cobra.Command{
		Use:   "delineate X Y",
		Short: "Run one watershed job for a point and print the resulting layers",
		Long: `delineate selects the point (X, Y) once, waits for the job and its result
fetches, and prints the view snapshot as JSON on stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("x: %w", err)
			}
			y, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("y: %w", err)
			}
			pt := model.Point{X: x, Y: y, SpatialReference: model.SpatialReference{WKID: opts.wkid}}
			return runDelineate(cmd.Context(), root.load(), opts, pt, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.wkid, "wkid", opts.wkid, "spatial reference of X and Y")
	cmd.Flags().BoolVar(&opts.signIn, "sign-in", false, "sign in first when the auth mode is oauth")
	return cmd
}

type delineateResult struct {
	Dispatch watershed.Dispatch `json:"dispatch"`
	Outcome  watershed.Outcome  `json:"outcome"`
	JobID    string             `json:"jobId,omitempty"`
	Status   string             `json:"status,omitempty"`
	Error    string             `json:"error,omitempty"`
	View     view.Snapshot      `json:"view"`
}

func runDelineate(ctx context.Context, cfg config.Config, opts *delineateOptions, pt model.Point, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := pt.Validate(); err != nil {
		return err
	}
	log := newLogger(cfg, "delineate", os.Stderr)

	a, err := newApp(ctx, ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if opts.signIn && cfg.Auth.Mode == config.AuthModeOAuth && !a.session.Ready() {
		if err := a.session.SignIn(ctx); err != nil {
			return err
		}
	}

	res := delineateResult{}
	var mu sync.Mutex
	a.orch.SetOnCycle(func(c watershed.Cycle) {
		mu.Lock()
		defer mu.Unlock()
		res.Outcome = c.Outcome
		res.JobID = c.Handle.JobID
		res.Status = string(c.Handle.Status)
		if c.Err != nil {
			res.Error = c.Err.Error()
		}
	})

	res.Dispatch = a.orch.OnPointSelected(ctx, pt)
	if res.Dispatch != watershed.DispatchSubmitted {
		return fmt.Errorf("point not dispatched: %s", res.Dispatch)
	}
	a.orch.Wait()

	mu.Lock()
	res.View = a.view.Snapshot()
	mu.Unlock()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if res.Outcome != watershed.OutcomeSucceeded {
		return fmt.Errorf("job %s: %s", res.JobID, res.Outcome)
	}
	return nil
}
