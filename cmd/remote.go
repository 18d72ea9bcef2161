package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dmr-cli/internal/fetcher"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect the DMR FTP drop directory",
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidate archives in the drop directory",
	Long:  "Lists the ZIP archives in the DMR FTP drop directory. The archive the ingest command would select is marked with an asterisk.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		host, _ := cmd.Flags().GetString("host")
		dir, _ := cmd.Flags().GetString("dir")
		if host == "" {
			host = cfg.FTP.Host
		}
		if dir == "" {
			dir = cfg.FTP.Dir
		}

		src := fetcher.NewFTP(fetcher.FTPOptions{
			Host:     host,
			Dir:      dir,
			User:     cfg.FTP.User,
			Password: cfg.FTP.Password,
			Timeout:  time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
		})

		archives, err := src.List(ctx)
		if err != nil {
			return eris.Wrap(err, "remote list")
		}

		if len(archives) == 0 {
			fmt.Println("No zip archives in drop directory")
			return nil
		}

		newest, err := fetcher.Newest(archives)
		if err != nil {
			return eris.Wrap(err, "remote list")
		}

		for _, a := range archives {
			mark := " "
			if a.Name == newest.Name {
				mark = "*"
			}
			fmt.Printf("%s %-50s %12d  %s\n", mark, a.Name, a.Size, a.ModTime.Format(time.RFC3339))
		}

		return nil
	},
}

func init() {
	remoteListCmd.Flags().String("host", "", "FTP host:port (overrides config)")
	remoteListCmd.Flags().String("dir", "", "FTP drop directory (overrides config)")
	remoteCmd.AddCommand(remoteListCmd)
	rootCmd.AddCommand(remoteCmd)
}
