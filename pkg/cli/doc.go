/*
Package cli provides helpers shared by the deepguard commands.

Output formatting (text, JSON, CSV):

	format, err := cli.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, result); err != nil {
		return err
	}

Results that implement Table are rendered as aligned columns in text mode
and as rows in CSV mode.

Signal handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
	reload, stopReload := cli.ReloadSignals()
	defer stopReload()

ExitCode maps command errors to process exit codes.
*/
package cli
