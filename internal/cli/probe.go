package cli

import (
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the automation driver is reachable and compatible",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			driver, err := newDriver(c)
			if err != nil {
				return err
			}
			v, err := driver.Probe(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(map[string]string{
					"driver_url":     c.Driver.URL,
					"driver_version": v.String(),
				})
				return nil
			}
			okLabel.Fprintf(cmd.OutOrStdout(), "OK ")
			cmd.Printf("driver %s at %s\n", v, c.Driver.URL)
			return nil
		},
	}
}
