package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/report"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var flagStatusFiles bool

var statusCmd = &cobra.Command{
	Use:   "status [dir]",
	Short: "Show the recorded baseline, its history and the last scan",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	b, err := a.store.Load(cmd.Context())
	if errors.Is(err, baseline.ErrNoBaseline) {
		fmt.Fprintf(out, "No baseline recorded for %s; run `fimwatch check` to create one.\n", a.cfg.Directory)
		return nil
	} else if err != nil {
		return err
	}

	var table = tablewriter.NewWriter(out)
	table.SetHeader([]string{"Root", "Baseline", "Backend", "Recorded", "Files", "Size"})
	table.Append([]string{
		b.Root,
		a.cfg.Baseline.Path,
		baseline.ResolveBackend(a.cfg.Baseline.Path, a.cfg.Baseline.Backend),
		humanize.Time(b.CreatedAt),
		strconv.Itoa(b.Len()),
		humanize.Bytes(uint64(b.TotalSize())),
	})
	table.Render()

	gens, err := a.store.History(cmd.Context())
	if err != nil {
		return err
	}
	if len(gens) > 1 {
		fmt.Fprintln(out, "\nHistory:")
		var table = tablewriter.NewWriter(out)
		table.SetHeader([]string{"Recorded", "At", "Files"})
		for _, g := range gens {
			table.Append([]string{humanize.Time(g.CreatedAt), g.CreatedAt.Local().Format(time.RFC3339), strconv.Itoa(g.Files)})
		}
		table.Render()
	}

	if a.journal != nil {
		if e, ok, err := a.journal.Latest(); err != nil {
			return err
		} else if ok {
			fmt.Fprintln(out, "\nLast scan:")
			printEntry(out, e)
		}
	}

	if flagStatusFiles {
		fmt.Fprintln(out, "\nFiles:")
		var table = tablewriter.NewWriter(out)
		table.SetHeader([]string{"Path", "Size", "SHA-256", "Checked"})
		for _, path := range b.Paths() {
			r, _ := b.Get(path)
			table.Append([]string{r.Path, humanize.Bytes(uint64(r.Size)), r.Digest.String(), humanize.Time(r.LastChecked)})
		}
		table.Render()
	}
	return nil
}

func printEntry(w io.Writer, e report.Entry) {
	var table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"Scan", "Finished", "Unchanged", "Modified", "New", "Missing"})
	table.Append([]string{
		e.ID,
		humanize.Time(e.FinishedAt),
		strconv.Itoa(e.Unchanged),
		strconv.Itoa(len(e.Modified)),
		strconv.Itoa(len(e.New)),
		strconv.Itoa(len(e.Missing)),
	})
	table.Render()
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusFiles, "files", false, "list every recorded file")
	rootCmd.AddCommand(statusCmd)
}
