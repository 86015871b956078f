// Command-line interface to a remote image platform for building a project hierarchy,
// importing images and metadata, querying images by key/value metadata, and
// thresholding query results.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/omerokv/client"
	"github.com/janelia-flyem/omerokv/config"
	"github.com/janelia-flyem/omerokv/imgimport"
	"github.com/janelia-flyem/omerokv/journal"
	"github.com/janelia-flyem/omerokv/kvimport"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/janelia-flyem/omerokv/query"
	"github.com/janelia-flyem/omerokv/threshold"
	"gocloud.dev/blob"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to TOML configuration file.
	configFile = flag.String("config", "", "")

	// Platform URL, overriding configuration.
	hostURL = flag.String("host", "", "")

	// Candidate scope for queries, e.g., "Dataset:49".
	scopeStr = flag.String("scope", "", "")

	// Lines skipped at the top of metadata sheets.
	skipLines = flag.Int("skip", 0, "")

	// Field separator of metadata sheets.
	separator = flag.String("separator", ",", "")

	// Index of the image name column in metadata sheets.
	nameColumn = flag.Int("namecol", 0, "")

	// Add a Year entry from sheet file names like "2020.csv".
	yearFromName = flag.Bool("year", false, "")

	// Number of concurrent uploads for image import.
	numWorkers = flag.Int("workers", 0, "")

	// Directory to also write thresholded images to.
	exportDir = flag.String("export", "", "")
)

const helpMessage = `
omerokv drives a remote image platform: hierarchy, import, key/value metadata and queries.

Usage: omerokv [options] <command>

      -config     =string   Path to TOML configuration file.
      -host       =string   URL of the image platform, overriding the configuration.
      -scope      =string   Candidate images for query: Image:<id>, Dataset:<id> or Project:<id>.
      -skip       =number   Lines to skip at the top of metadata sheets.
      -separator  =string   Field separator of metadata sheets (default ",").
      -namecol    =number   Column holding the image name in metadata sheets (default 0).
      -year       (flag)    Add Year=<file name> for metadata sheets named like 2020.csv.
      -workers    =number   Concurrent uploads for import-images.
      -export     =string   Directory to also write thresholded images to.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	ping
	create-project  <project name> [dataset name ...]
	import-images   [bucket URL]
	import-metadata <sheet.csv> [sheet.csv ...]
	query           <key>=<value> [<key>=<value> ...]
	threshold       <job.json>

The platform password is read from the configuration or the %s environment variable.
`

var usage = func() {
	fmt.Printf(helpMessage, config.PasswordEnv)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *runVerbose {
		omerokv.Verbose = true
		omerokv.SetLogMode(omerokv.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	// Capture ctrl+c and other interrupts, canceling whatever is running.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := Command(flag.Args())
	err := DoCommand(ctx, cmd)
	omerokv.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var c *config.Config
	if *configFile == "" {
		c = config.Default()
	} else {
		var err error
		if c, err = config.LoadConfig(*configFile); err != nil {
			return nil, err
		}
	}
	if *hostURL != "" {
		c.Server.Host = *hostURL
	}
	if *numWorkers > 0 {
		c.Import.Workers = *numWorkers
	}
	c.Logging.SetLogger()
	return c, nil
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, cmd Command) error {
	if len(cmd) == 0 {
		return fmt.Errorf("blank command")
	}
	if cmd.Name() == "about" {
		fmt.Printf("omerokv API %s (compatible with servers from %s)\n", omerokv.APIVersion, omerokv.MinAPIVersion)
		return nil
	}
	c, err := loadConfig()
	if err != nil {
		return err
	}

	var run func(context.Context, *client.Client, *config.Config, Command) error
	switch cmd.Name() {
	case "ping":
		run = doPing
	case "create-project":
		run = doCreateProject
	case "import-images":
		run = doImportImages
	case "import-metadata":
		run = doImportMetadata
	case "query":
		run = doQuery
	case "threshold":
		run = doThreshold
	default:
		return fmt.Errorf("unknown command %q, try 'omerokv help'", cmd.Name())
	}

	start := time.Now()
	cl, err := client.Open(ctx, c.ClientConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := cl.Close(context.Background()); err != nil {
			omerokv.Errorf("%v\n", err)
		}
	}()
	if err := run(ctx, cl, c, cmd); err != nil {
		return err
	}
	fmt.Printf("Program executed in %s.\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func doPing(ctx context.Context, cl *client.Client, c *config.Config, cmd Command) error {
	ids, err := cl.AllImages(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s is up with %s images visible.\n", c.Server.Host, humanize.Comma(int64(len(ids))))
	return nil
}

func doCreateProject(ctx context.Context, cl *client.Client, c *config.Config, cmd Command) error {
	args := cmd.Args()
	if len(args) == 0 {
		return fmt.Errorf("create-project must be followed by a project name")
	}
	project, err := cl.CreateProject(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Created project %q with id %d\n", args[0], project)
	for _, name := range args[1:] {
		dataset, err := cl.CreateDataset(ctx, name, project)
		if err != nil {
			return err
		}
		fmt.Printf("Created dataset %q with id %d\n", name, dataset)
	}
	return nil
}

func openJournal(c *config.Config) (*journal.Journal, error) {
	if c.Import.Journal == "" {
		return journal.OpenInMemory()
	}
	return journal.Open(c.Import.Journal)
}

func doImportImages(ctx context.Context, cl *client.Client, c *config.Config, cmd Command) error {
	source := cmd.Argument(1)
	if source == "" {
		source = c.Import.Source
	}
	if source == "" {
		return fmt.Errorf("import-images needs a bucket URL argument or [import] source")
	}
	if !strings.Contains(source, "://") {
		abs, err := filepath.Abs(source)
		if err != nil {
			return err
		}
		source = "file://" + filepath.ToSlash(abs)
	}
	bucket, err := blob.OpenBucket(ctx, source)
	if err != nil {
		return fmt.Errorf("unable to open bucket %q: %v", source, err)
	}
	defer bucket.Close()

	j, err := openJournal(c)
	if err != nil {
		return err
	}
	defer j.Close()

	report, err := imgimport.Run(ctx, cl, bucket, c.Import, j)
	for dataset, n := range report.PerDataset {
		fmt.Printf("  %s: %d images\n", dataset, n)
	}
	fmt.Printf("Imported %d images (%s), skipped %d already imported, %d failed.\n",
		report.Files, humanize.Bytes(uint64(report.Bytes)), report.Skipped, report.Failed)
	return err
}

func doImportMetadata(ctx context.Context, cl *client.Client, c *config.Config, cmd Command) error {
	sheets := cmd.Args()
	if len(sheets) == 0 {
		return fmt.Errorf("import-metadata must be followed by one or more sheet files")
	}
	sep := []rune(*separator)
	if len(sep) != 1 {
		return fmt.Errorf("separator must be a single character, got %q", *separator)
	}
	j, err := openJournal(c)
	if err != nil {
		return err
	}
	defer j.Close()

	for _, sheet := range sheets {
		opts := kvimport.SheetOptions{
			Separator:  sep[0],
			SkipLines:  *skipLines,
			NameColumn: *nameColumn,
		}
		if *yearFromName {
			if year, ok := kvimport.YearFromFileName(sheet); ok {
				opts.Extra = omerokv.KeyValues{year}
			}
		}
		f, err := os.Open(sheet)
		if err != nil {
			return err
		}
		rows, err := kvimport.ReadSheet(f, opts)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %v", sheet, err)
		}
		summary, err := kvimport.Annotate(ctx, cl, rows, j)
		for _, rowErr := range summary.Failed {
			fmt.Printf("  %s %v\n", sheet, rowErr)
		}
		fmt.Printf("%s: %s\n", sheet, summary)
		if err != nil {
			return err
		}
	}
	return nil
}

func doQuery(ctx context.Context, cl *client.Client, c *config.Config, cmd Command) error {
	scope, err := query.ParseScope(*scopeStr)
	if err != nil {
		return err
	}
	constraints, err := query.ParseConstraintArgs(cmd.KeyValueArgs())
	if err != nil {
		return err
	}
	candidates, err := query.Candidates(ctx, cl, scope)
	if err != nil {
		return err
	}
	result, err := query.FilterOptional(ctx, cl, candidates, constraints)
	if err != nil {
		return err
	}
	omerokv.Infof("%d of %d images in %s match %v\n", result.Len(), candidates.Len(), scope, constraints.Constraints())
	fmt.Println(result)
	return nil
}

func doThreshold(ctx context.Context, cl *client.Client, c *config.Config, cmd Command) error {
	job := threshold.DefaultJob()
	if jobFile := cmd.Argument(1); jobFile != "" {
		data, err := os.ReadFile(jobFile)
		if err != nil {
			return err
		}
		if job, err = threshold.ParseJob(data); err != nil {
			return err
		}
	}
	result, err := threshold.Run(ctx, cl, job)
	if err != nil {
		return err
	}
	if *exportDir != "" {
		if err := exportImages(ctx, cl, job, result.Created); err != nil {
			return err
		}
	}
	fmt.Println(result.Message())
	return nil
}

// exportImages writes thresholded images with 1 or 3 channels and a single z and t to
// local files.
func exportImages(ctx context.Context, cl *client.Client, job threshold.Job, ids []omerokv.ImageID) error {
	if err := os.MkdirAll(*exportDir, 0755); err != nil {
		return err
	}
	for _, id := range ids {
		info, err := cl.GetImage(ctx, id)
		if err != nil {
			return err
		}
		if info.SizeZ != 1 || info.SizeT != 1 || (info.SizeC != 1 && info.SizeC != 3) {
			omerokv.Warningf("not exporting image %d (%s) with %d z, %d c, %d t\n", id, info.Name, info.SizeZ, info.SizeC, info.SizeT)
			continue
		}
		planes, err := cl.Planes(ctx, info)
		if err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(*exportDir, info.Name))
		if err != nil {
			return err
		}
		if err := threshold.Encode(f, job.Format, planes, info.SizeX, info.SizeY); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
