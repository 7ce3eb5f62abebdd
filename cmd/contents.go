package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/storage"
)

var errSameStore = errors.New("source and destination are the same local directory")

func newContentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contents",
		Short: "Manage downloaded step contents",
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Upload local contents to the configured store",
		Long: `Copy every file of a local contents directory to the store selected by
--to (or storage.backend). Files already present at the destination are skipped.`,
		RunE: runContentsSync,
	}
	sync.Flags().String("from", "", "local contents directory (default storage.local_dir)")
	sync.Flags().String("to", "", "destination backend: minio or sftp (default storage.backend)")

	cmd.AddCommand(sync)
	return cmd
}

func runContentsSync(cmd *cobra.Command, _ []string) error {
	cfg, ctx, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	defer func() { _ = log.Sync() }()

	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		from = cfg.Storage.LocalDir
	}
	dstCfg := cfg.Storage
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		dstCfg.Backend = to
	}
	if dstCfg.Backend == config.StorageLocal && filepath.Clean(dstCfg.LocalDir) == filepath.Clean(from) {
		return errSameStore
	}

	src, err := storage.NewLocalStore(from)
	if err != nil {
		return err
	}

	dst, err := storage.New(ctx, dstCfg, log)
	if err != nil {
		return fmt.Errorf("failed to open destination store: %w", err)
	}
	defer func() { _ = dst.Close() }()

	result, err := storage.Sync(ctx, src, dst, log)
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d, skipped %d, failed %d\n",
		result.Uploaded, result.Skipped, len(result.Failed))
	return err
}
