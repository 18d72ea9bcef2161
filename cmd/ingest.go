package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dmr-cli/internal/fetcher"
	"github.com/sells-group/dmr-cli/internal/ingest"
	"github.com/sells-group/dmr-cli/internal/plates"
	"github.com/sells-group/dmr-cli/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [archive.zip]",
	Short: "Extract license plates from a registration archive",
	Long: `Extract license plates from a registration archive into a deduplicated index.

With no argument, the newest ZIP archive is downloaded from the DMR FTP drop
directory. With a path argument, the local archive is read in place.
Corrupt archive entries and malformed documents are logged and skipped;
plates already extracted from them are kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest"))

		host, _ := cmd.Flags().GetString("host")
		dir, _ := cmd.Flags().GetString("dir")
		dbPath, _ := cmd.Flags().GetString("db")
		keepTemp, _ := cmd.Flags().GetBool("keep-temp")

		if host == "" {
			host = cfg.FTP.Host
		}
		if dir == "" {
			dir = cfg.FTP.Dir
		}
		if dbPath == "" {
			dbPath = cfg.Store.Path
		}

		var src fetcher.Source
		if len(args) == 1 {
			local, err := fetcher.NewLocal(args[0])
			if err != nil {
				return eris.Wrap(err, "ingest: local archive")
			}
			src = local
		} else {
			src = fetcher.NewFTP(fetcher.FTPOptions{
				Host:     host,
				Dir:      dir,
				User:     cfg.FTP.User,
				Password: cfg.FTP.Password,
				Timeout:  time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
			})
		}

		var sink *store.SQLite
		if dbPath != "" {
			s, err := store.NewSQLite(dbPath)
			if err != nil {
				return eris.Wrapf(err, "ingest: open sink %s", dbPath)
			}
			defer s.Close() //nolint:errcheck
			sink = s
		}

		st := plates.NewStore()
		ing := ingest.New(st, ingest.Options{
			Scan: plates.ScanOptions{
				RecordElement: cfg.Ingest.RecordElement,
				PlateElement:  cfg.Ingest.PlateElement,
			},
			TempDir:        cfg.Ingest.TempDir,
			ProgressStep:   cfg.Ingest.ProgressStep,
			MilestoneEvery: cfg.Ingest.MilestoneEvery,
			PreviewSize:    cfg.Ingest.PreviewSize,
			KeepTemp:       keepTemp,
			Sink:           sink,
			Out:            os.Stdout,
		})

		log.Info("starting ingest", zap.String("source", src.Name()))

		result, err := ing.Run(ctx, src)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		ing.Report(os.Stdout)

		log.Info("done",
			zap.Int("plates", result.Plates),
			zap.Int("inserted", result.Inserted),
			zap.Int("entry_warnings", result.EntryWarnings),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("host", "", "FTP host:port (overrides config)")
	ingestCmd.Flags().String("dir", "", "FTP drop directory (overrides config)")
	ingestCmd.Flags().String("db", "", "SQLite path to persist plates (overrides config)")
	ingestCmd.Flags().Bool("keep-temp", false, "keep the downloaded archive after the run")
	rootCmd.AddCommand(ingestCmd)
}
