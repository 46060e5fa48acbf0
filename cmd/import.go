package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm/internal/importer"
)

var importSource string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import seed records from the prototype HTML page",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		source := importSource
		if source == "" {
			source = cfg.Import.Source
		}

		doc, err := os.ReadFile(source)
		if err != nil {
			return eris.Wrapf(err, "read source %s", source)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sum, err := importer.New(st).Run(ctx, string(doc))
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.String("source", source),
			zap.Int("accounts", sum.Accounts),
			zap.Int("deals", sum.Deals),
			zap.Int("leads", sum.Leads),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "path to the prototype HTML page (default from config)")
	rootCmd.AddCommand(importCmd)
}
