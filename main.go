// Command feedbot inspects and maintains a subscription snapshot file.
// It is an offline operator tool: every command works directly on the
// snapshot, no network access involved.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"feedbot/internal/database"
	"feedbot/internal/model"
	"feedbot/internal/opml"
)

const defaultSnapshotPath = "feedbot.json"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// A .env file is optional; the environment may already be set.
	_ = godotenv.Load()

	flags := pflag.NewFlagSet("feedbot", pflag.ContinueOnError)
	dbPath := flags.StringP("database", "d", "",
		"path to the snapshot file (default $FEEDBOT_DB, else "+defaultSnapshotPath+")")
	subscriber := flags.Int64P("subscriber", "s", 0, "subscriber id for export/import")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: feedbot [flags] <command>

Commands:
  feeds                       list all feeds
  subscribers                 list all subscribers
  export [-s id]              write OPML to stdout (one subscriber, or all feeds)
  import -s id <file.opml>    subscribe a subscriber to every feed in the file
  remove-subscriber <id>      unsubscribe a subscriber from everything
  reassign <from> <to>        move all subscriptions to a new subscriber id

Flags:
%s`, flags.FlagUsages())
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	path := *dbPath
	if path == "" {
		path = os.Getenv("FEEDBOT_DB")
	}
	if path == "" {
		path = defaultSnapshotPath
	}
	db, err := database.Open(path, database.WithLogger(logger))
	if err != nil {
		return err
	}

	switch command := args[0]; command {
	case "feeds":
		return listFeeds(db)
	case "subscribers":
		return listSubscribers(db)
	case "export":
		return exportOPML(db, model.SubscriberID(*subscriber), flags.Changed("subscriber"))
	case "import":
		if len(args) < 2 {
			return errors.New("import: missing OPML file argument")
		}
		if !flags.Changed("subscriber") {
			return errors.New("import: --subscriber is required")
		}
		return importOPML(db, model.SubscriberID(*subscriber), args[1], logger)
	case "remove-subscriber":
		if len(args) < 2 {
			return errors.New("remove-subscriber: missing subscriber id")
		}
		id, err := parseSubscriberID(args[1])
		if err != nil {
			return err
		}
		return db.DeleteSubscriber(id)
	case "reassign":
		if len(args) < 3 {
			return errors.New("reassign: need <from> and <to> subscriber ids")
		}
		from, err := parseSubscriberID(args[1])
		if err != nil {
			return err
		}
		to, err := parseSubscriberID(args[2])
		if err != nil {
			return err
		}
		return db.ReassignSubscriber(from, to)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func parseSubscriberID(arg string) (model.SubscriberID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subscriber id %q: %w", arg, err)
	}
	return model.SubscriberID(id), nil
}

func listFeeds(db *database.Database) error {
	feeds := db.GetAllFeeds()
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Title < feeds[j].Title })

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TITLE\tLINK\tSUBSCRIBERS\tERRORS\n")
	for _, feed := range feeds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n",
			feed.Title, feed.Link, len(feed.Subscribers), feed.ErrorCount)
	}
	return tw.Flush()
}

func listSubscribers(db *database.Database) error {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "SUBSCRIBER\tFEEDS\n")
	for _, subscriber := range db.GetAllSubscribers() {
		feeds, _ := db.GetSubscribedFeeds(subscriber)
		fmt.Fprintf(tw, "%d\t%d\n", subscriber, len(feeds))
	}
	return tw.Flush()
}

func exportOPML(db *database.Database, subscriber model.SubscriberID, single bool) error {
	var feeds []model.Feed
	title := "feedbot subscriptions"
	if single {
		subscribed, ok := db.GetSubscribedFeeds(subscriber)
		if !ok {
			return fmt.Errorf("export: subscriber %d has no subscriptions", subscriber)
		}
		feeds = subscribed
		title = fmt.Sprintf("subscriptions of %d", subscriber)
	} else {
		feeds = db.GetAllFeeds()
	}

	document, err := opml.Export(title, feeds)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	_, err = os.Stdout.Write(append(document, '\n'))
	return err
}

func importOPML(db *database.Database, subscriber model.SubscriberID, path string, logger *slog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	for _, entry := range entries {
		title := entry.Title
		if title == "" {
			title = entry.URL
		}
		// No baseline items: everything the poller fetches first counts
		// as new, which is the right call for an offline import.
		fetched := model.FetchedFeed{Title: title}
		result, err := db.Subscribe(subscriber, entry.URL, fetched, model.LinkPreview{})
		if errors.Is(err, database.ErrAlreadySubscribed) {
			logger.Info("already subscribed", "link", entry.URL, "subscriber", subscriber)
			continue
		}
		if err != nil {
			return fmt.Errorf("import %s: %w", entry.URL, err)
		}
		logger.Info("subscribed", "link", entry.URL, "subscriber", subscriber,
			"result", result.String())
	}
	return nil
}
