package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Geniuskaa/maraton_registration/pkg/admin"
	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/download"
	"github.com/Geniuskaa/maraton_registration/pkg/mail"
	"github.com/Geniuskaa/maraton_registration/pkg/report"
)

var (
	listJSON     bool
	exportFormat string
	exportOut    string
	reprintFetch bool
	reprintOut   string
)

// printAlerter writes admin alerts to the error stream.
type printAlerter struct {
	w io.Writer
}

func (a printAlerter) Alert(msg string) {
	fmt.Fprintln(a.w, msg)
}

// printOpener prints the address for the operator to open.
type printOpener struct {
	w io.Writer
}

func (o printOpener) Open(url string) error {
	_, err := fmt.Fprintln(o.w, url)
	return err
}

func newPanel() (*admin.Panel, *api.Client) {
	client := api.NewClient(conf.Api.Base, conf.Api.Timeout(), logger)
	opts := []admin.PanelOption{admin.WithWorkbook(report.Workbook)}
	if conf.Mail.Hostname != "" {
		opts = append(opts, admin.WithReportMailer(mail.NewSender(conf.Mail, logger)))
	}
	return admin.NewPanel(client, logger, admin.LoadLocation(conf.App.Timezone), opts...), client
}

func outDir(flag string) string {
	if flag != "" {
		return flag
	}
	return conf.App.DownloadDir
}

var participantsCmd = &cobra.Command{
	Use:   "participants",
	Short: "Admin operations on registered participants",
}

var participantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every registered participant",
	RunE: func(cmd *cobra.Command, args []string) error {
		panel, _ := newPanel()
		if err := panel.Load(cmd.Context(), printAlerter{cmd.ErrOrStderr()}); err != nil {
			return err
		}

		if listJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(panel.Records())
		}
		return writeTable(cmd.OutOrStdout(), panel.Rows())
	},
}

func writeTable(w io.Writer, rows []admin.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFolio\tPlantel\tNombre\tAlumno\tGrado\tRol\tCreado")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Clave, r.Plantel, r.FullName, r.ChildName, r.Grado, r.Role, r.Created)
	}
	if len(rows) == 0 {
		fmt.Fprintln(tw, "Sin registros")
	}
	return tw.Flush()
}

var participantsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the participant list as CSV or Excel",
	RunE: func(cmd *cobra.Command, args []string) error {
		panel, _ := newPanel()
		alerter := printAlerter{cmd.ErrOrStderr()}
		saver := &download.FileSaver{Dir: outDir(exportOut)}

		switch exportFormat {
		case "csv":
			if err := panel.ExportCSV(cmd.Context(), saver, alerter); err != nil {
				return err
			}
		case "xlsx":
			if err := panel.Load(cmd.Context(), alerter); err != nil {
				return err
			}
			if err := panel.ExportXLSX(saver); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown format %q, use csv or xlsx", exportFormat)
		}

		fmt.Fprintln(cmd.OutOrStdout(), saver.Saved)
		return nil
	},
}

var participantsReprintCmd = &cobra.Command{
	Use:   "reprint <folio|id>",
	Short: "Print the badge address for a folio or id, or download it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var query string
		if len(args) > 0 {
			query = args[0]
		}

		panel, client := newPanel()
		if !reprintFetch {
			return panel.Reprint(query, printOpener{cmd.OutOrStdout()}, printAlerter{cmd.ErrOrStderr()})
		}

		f, err := client.Reprint(cmd.Context(), query)
		if err != nil {
			return err
		}
		saver := &download.FileSaver{Dir: outDir(reprintOut)}
		if err := saver.Save(f.Name, f.ContentType, f.Data); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), saver.Saved)
		return nil
	},
}

var participantsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print registration totals per plantel and role",
	RunE: func(cmd *cobra.Command, args []string) error {
		panel, _ := newPanel()
		stats, err := panel.Stats(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var participantsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Mail the CSV export to MAIL_REPORT_TO",
	RunE: func(cmd *cobra.Command, args []string) error {
		if conf.Mail.Hostname == "" {
			return mail.ErrNotConfigured
		}
		panel, _ := newPanel()
		return panel.MailReport(cmd.Context(), printAlerter{cmd.ErrOrStderr()})
	},
}

func init() {
	participantsListCmd.Flags().BoolVar(&listJSON, "json", false, "print records as JSON")

	participantsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv or xlsx")
	participantsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "target directory (default DOWNLOAD_DIR)")

	participantsReprintCmd.Flags().BoolVarP(&reprintFetch, "download", "d", false, "download the PDF instead of printing its address")
	participantsReprintCmd.Flags().StringVarP(&reprintOut, "out", "o", "", "target directory (default DOWNLOAD_DIR)")

	participantsCmd.AddCommand(participantsListCmd, participantsExportCmd, participantsReprintCmd,
		participantsStatsCmd, participantsReportCmd)
	rootCmd.AddCommand(participantsCmd)
}
