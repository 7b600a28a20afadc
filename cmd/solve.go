package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/benders/app"
	"github.com/kilianp07/benders/infra/logger"
	"github.com/kilianp07/benders/infra/metrics"
	"github.com/kilianp07/benders/pkg/export"
)

var (
	evaluatePath string
	metricsAddr  string
	progress     bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run the decomposition and print the day-ahead schedule",
	RunE:  solve,
}

func init() {
	solveCmd.Flags().StringVar(&evaluatePath, "evaluate", "", "problem whose scenarios price the final dispatch out of sample")
	solveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while solving")
	solveCmd.Flags().BoolVar(&progress, "progress", false, "print one line per round to stderr")
	rootCmd.AddCommand(solveCmd)
}

func solve(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.NewZerologLogger("cli", cfg.Log)
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()

	if metricsAddr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.StartPromServer(srvCtx, metricsAddr); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}
	if progress {
		sub := svc.Events().Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range sub {
				fmt.Fprintf(cmd.ErrOrStderr(), "round %d theta=%g lower_bound=%g expected=%g gap=%g cuts=%d\n",
					ev.Round, ev.Theta, ev.LowerBound, ev.ExpectedRecourse, ev.Gap, ev.Cuts)
			}
		}()
		defer func() {
			svc.Events().Unsubscribe(sub)
			<-done
		}()
	}

	res, rep, err := svc.Solve(ctx)
	if err != nil {
		return err
	}
	if !res.Converged {
		log.Warnf("%v", res.Err())
	}

	if evaluatePath != "" {
		oos, err := app.LoadProblem(evaluatePath)
		if err != nil {
			return fmt.Errorf("load evaluation problem: %w", err)
		}
		results, expected, err := svc.Evaluate(ctx, oos, res.Dispatch)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		rep.OutOfSample = export.NewEvaluation(oos, results, expected)
	}

	w, closeOut, err := output(cmd)
	if err != nil {
		return err
	}
	if format == "csv" {
		err = export.WriteCSV(w, rep)
	} else {
		err = export.WriteJSON(w, rep)
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}
