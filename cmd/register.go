package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/download"
	"github.com/Geniuskaa/maraton_registration/pkg/registration"
)

var (
	regForm registration.Registration
	regOut  string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a participant and save the badge PDF",
	Long: `Register a participant the same way the web form does and save the badge.

Examples:
  goapp register --full-name "Ana López" --plantel Primaria \
    --child-name "Luis López" --grado "2do Grado Primaria" --role ABUELITO

  # Save the badge somewhere else than DOWNLOAD_DIR
  goapp register ... --out ./gafetes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, closeDB := openDatabase(ctx)
		defer closeDB()

		var recorder registration.AttemptRecorder
		if db != nil {
			recorder = db
		}

		client := api.NewClient(conf.Api.Base, conf.Api.Timeout(), logger)
		submitter := registration.NewSubmitter(client, logger, nil, recorder)

		dir := regOut
		if dir == "" {
			dir = conf.App.DownloadDir
		}
		saver := &download.FileSaver{Dir: dir}

		out := submitter.Submit(ctx, regForm, saver)
		fmt.Fprintln(cmd.ErrOrStderr(), out.Status)
		if out.Failed {
			return errors.New(out.Status)
		}
		fmt.Fprintln(cmd.OutOrStdout(), saver.Saved)
		return nil
	},
}

func init() {
	f := registerCmd.Flags()
	f.StringVar(&regForm.FullName, "full-name", "", "full name of the runner")
	f.StringVar(&regForm.Plantel, "plantel", "", "Primaria, Secundaria or Preparatoria")
	f.StringVar(&regForm.ChildName, "child-name", "", "full name of the student")
	f.StringVar(&regForm.Grado, "grado", "", "grade of the student, e.g. \"2do Grado Primaria\"")
	f.StringVar(&regForm.Role, "role", "", "category, e.g. ABUELITO")
	f.StringVarP(&regOut, "out", "o", "", "directory for credencial.pdf (default DOWNLOAD_DIR)")
	rootCmd.AddCommand(registerCmd)
}
