package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/benders/app"
	"github.com/kilianp07/benders/pkg/export"
)

var extensiveCmd = &cobra.Command{
	Use:   "extensive",
	Short: "Solve the deterministic equivalent in a single LP",
	RunE:  extensive,
}

func init() {
	rootCmd.AddCommand(extensiveCmd)
}

func extensive(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	sol, err := svc.Extensive(ctx)
	if err != nil {
		return err
	}
	rep := export.NewExtensiveReport(svc.Problem(), sol)

	w, closeOut, err := output(cmd)
	if err != nil {
		return err
	}
	if format == "csv" {
		err = export.WriteScheduleCSV(w, rep.Schedule)
	} else {
		err = export.WriteJSON(w, rep)
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}
