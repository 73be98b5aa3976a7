package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/openmined/drivegate/internal/quickstart"
	"github.com/openmined/drivegate/internal/version"
)

type options struct {
	files       bool
	download    string
	credentials string
	token       string
	outDir      string
}

// connect is replaced in tests.
var connect = func(ctx context.Context, opts *quickstart.Options) (quickstart.Drive, error) {
	return quickstart.Connect(ctx, opts)
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "quickstart",
		Short:   "List or download your Google Drive files",
		Version: version.Detailed(),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), &opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().BoolVar(&opts.files, "files", false, "List the files you own")
	cmd.Flags().StringVar(&opts.download, "download", "", "Download the file with this id")
	cmd.Flags().StringVar(&opts.credentials, "credentials", "credentials.json", "OAuth client credentials file")
	cmd.Flags().StringVar(&opts.token, "token", "token.json", "Cached token file")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "Download directory")

	return cmd
}

func run(ctx context.Context, opts *options, args []string, out, errOut io.Writer) error {
	if len(args) > 0 || opts.files == (opts.download != "") {
		fmt.Fprintln(out, quickstart.UsageMessage)
		return nil
	}

	d, err := connect(ctx, &quickstart.Options{
		CredentialsFile: opts.credentials,
		TokenFile:       opts.token,
		Out:             errOut,
	})
	if err != nil {
		return err
	}

	if opts.files {
		return quickstart.ListFiles(ctx, d, out)
	}

	path, err := quickstart.DownloadFile(ctx, d, opts.download, opts.outDir, out)
	if err != nil {
		return err
	}
	slog.Debug("saved", "path", path)
	return nil
}

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   slog.LevelInfo,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
