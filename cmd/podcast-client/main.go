package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/fileutil"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/book-expert/podcast-service/internal/worker"
)

// Flag names.
const (
	flagTopic     = "topic"
	flagMinutes   = "minutes"
	flagAge       = "age"
	flagVoice     = "voice"
	flagOut       = "out"
	flagScriptOut = "script-out"
	flagRate      = "rate"
	flagDraft     = "draft"
	flagList      = "list"
	flagSearch    = "search"
	flagPage      = "page"
	flagDelete    = "delete"
	flagNATS      = "nats"
	flagBucket    = "bucket"
	flagTimeout   = "timeout"
)

// Flag descriptions.
const (
	flagTopicDesc     = "Episode topic (Hebrew)"
	flagMinutesDesc   = "Requested episode length in minutes"
	flagAgeDesc       = "Audience: 3-6 or 7-12"
	flagVoiceDesc     = "Voice name passed to the speech backend"
	flagOutDesc       = "Output MP3 path (defaults to <topic>_<seconds>s.mp3)"
	flagScriptOutDesc = "Optional path for the script text"
	flagRateDesc      = "Rate a draft with 1-5 stars (requires --draft)"
	flagDraftDesc     = "Draft ID returned by a generation"
	flagListDesc      = "List saved episodes"
	flagSearchDesc    = "Filter --list by topic substring"
	flagPageDesc      = "Page number for --list"
	flagDeleteDesc    = "Delete the saved episode for --topic and --minutes"
	flagNATSDesc      = "NATS server URL"
	flagBucketDesc    = "Object store bucket holding episode audio"
	flagTimeoutDesc   = "Request timeout"
)

// Defaults.
const (
	defaultMinutes  = 2.5
	defaultNATSURL  = nats.DefaultURL
	defaultBucket   = "EPISODE_AUDIO"
	defaultTimeout  = 10 * time.Minute
	defaultPageSize = 20
	maxStars        = 5
)

// Messages.
const (
	msgGenerated    = "Episode ready: %s (%s)\n"
	msgCached       = "Served from the saved library.\n"
	msgDraft        = "Draft %s. Rate it with --rate 1-5 --draft %s\n"
	msgWarning      = "Warning: %s\n"
	msgScriptSaved  = "Script written to %s\n"
	msgRatedSaved   = "Saved to the library.\n"
	msgRatedDropped = "Draft discarded.\n"
	msgDeleted      = "Deleted %q (%.1f min).\n"
	msgNoEpisodes   = "No saved episodes.\n"
	msgSizesUnknown = "Could not read the audio bucket: %v\n"
	sizeUnknown     = "?"
	sizeMissing     = "missing"
)

var (
	errTopicRequired = errors.New("--topic is required")
	errDraftRequired = errors.New("--draft is required with --rate")
	errInvalidStars  = fmt.Errorf("--rate must be between 1 and %d", maxStars)
	errInvalidLength = errors.New("--minutes must be positive")
	errConflicting   = errors.New("use only one of --list, --delete and --rate")
	errRemote        = errors.New("service error")
)

type mode int

const (
	modeGenerate mode = iota
	modeRate
	modeList
	modeDelete
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	topic     string
	minutes   float64
	age       string
	voice     string
	out       string
	scriptOut string
	rate      int
	draft     string
	list      bool
	search    string
	page      int
	delete    bool
	natsURL   string
	bucket    string
	timeout   time.Duration
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	m, err := flags.mode()
	if err != nil {
		return err
	}

	natsConnection, err := nats.Connect(flags.natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", flags.natsURL, err)
	}
	defer natsConnection.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	c := &client{conn: natsConnection, subjects: worker.DefaultSubjects(), out: stdout}

	switch m {
	case modeList:
		return c.list(ctx, flags)
	case modeDelete:
		return c.remove(ctx, flags)
	case modeRate:
		return c.rate(ctx, flags)
	default:
		return c.generate(ctx, flags)
	}
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	fs := flag.NewFlagSet("podcast-client", flag.ContinueOnError)
	fs.StringVar(&flags.topic, flagTopic, "", flagTopicDesc)
	fs.Float64Var(&flags.minutes, flagMinutes, defaultMinutes, flagMinutesDesc)
	fs.StringVar(&flags.age, flagAge, "7-12", flagAgeDesc)
	fs.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	fs.StringVar(&flags.out, flagOut, "", flagOutDesc)
	fs.StringVar(&flags.scriptOut, flagScriptOut, "", flagScriptOutDesc)
	fs.IntVar(&flags.rate, flagRate, 0, flagRateDesc)
	fs.StringVar(&flags.draft, flagDraft, "", flagDraftDesc)
	fs.BoolVar(&flags.list, flagList, false, flagListDesc)
	fs.StringVar(&flags.search, flagSearch, "", flagSearchDesc)
	fs.IntVar(&flags.page, flagPage, 1, flagPageDesc)
	fs.BoolVar(&flags.delete, flagDelete, false, flagDeleteDesc)
	fs.StringVar(&flags.natsURL, flagNATS, defaultNATSURL, flagNATSDesc)
	fs.StringVar(&flags.bucket, flagBucket, defaultBucket, flagBucketDesc)
	fs.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	if err := fs.Parse(args); err != nil {
		return appFlags{}, err
	}

	flags.topic = strings.TrimSpace(flags.topic)

	return flags, nil
}

// mode validates the flag combination and picks the action.
func (f appFlags) mode() (mode, error) {
	selected := 0

	for _, on := range []bool{f.list, f.delete, f.rate != 0} {
		if on {
			selected++
		}
	}

	if selected > 1 {
		return 0, errConflicting
	}

	switch {
	case f.list:
		return modeList, nil
	case f.rate != 0:
		if f.rate < 1 || f.rate > maxStars {
			return 0, errInvalidStars
		}

		if f.draft == "" {
			return 0, errDraftRequired
		}

		return modeRate, nil
	}

	if f.topic == "" {
		return 0, errTopicRequired
	}

	if f.minutes <= 0 {
		return 0, errInvalidLength
	}

	if f.delete {
		return modeDelete, nil
	}

	return modeGenerate, nil
}

func (f appFlags) listOptions() core.ListOptions {
	page := max(f.page, 1)

	return core.ListOptions{
		Limit:             defaultPageSize,
		Offset:            (page - 1) * defaultPageSize,
		Search:            f.search,
		CollapseByMinutes: true,
	}
}

func (f appFlags) outputPath() string {
	if f.out != "" {
		return f.out
	}

	return fileutil.EpisodeFileName(f.topic, f.minutes)
}

type client struct {
	conn     *nats.Conn
	subjects worker.Subjects
	out      io.Writer
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
	}
}

func (c *client) request(ctx context.Context, subject string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request on %s failed: %w", subject, err)
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}

	return nil
}

func (c *client) generate(ctx context.Context, f appFlags) error {
	var reply core.EpisodeGeneratedEvent

	err := c.request(ctx, c.subjects.Generate, core.EpisodeRequestedEvent{
		Header:     newHeader(),
		Topic:      f.topic,
		Minutes:    f.minutes,
		AgeProfile: f.age,
		Voice:      f.voice,
	}, &reply)
	if err != nil {
		return err
	}

	if reply.Error != "" {
		if reply.Reason != "" {
			fmt.Fprintln(c.out, reply.Reason)
		}

		return fmt.Errorf("%w: %s", errRemote, reply.Error)
	}

	store, err := c.audioStore(f.bucket)
	if err != nil {
		return err
	}

	audio, err := store.Download(ctx, reply.AudioKey)
	if err != nil {
		return err
	}

	path := f.outputPath()
	if dir := filepath.Dir(path); dir != "." {
		if err := fileutil.EnsureDir(dir); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(c.out, msgGenerated, path, fileutil.FormatFileSize(int64(len(audio))))

	if f.scriptOut != "" {
		if err := os.WriteFile(f.scriptOut, []byte(reply.Script+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.scriptOut, err)
		}

		fmt.Fprintf(c.out, msgScriptSaved, f.scriptOut)
	}

	if reply.Warning != "" {
		fmt.Fprintf(c.out, msgWarning, reply.Warning)
	}

	if reply.Cached {
		fmt.Fprint(c.out, msgCached)
	} else {
		fmt.Fprintf(c.out, msgDraft, reply.DraftID, reply.DraftID)
	}

	return nil
}

func (c *client) rate(ctx context.Context, f appFlags) error {
	var reply core.EpisodeRatingResultEvent

	err := c.request(ctx, c.subjects.Rate, core.EpisodeRatedEvent{Header: newHeader(), DraftID: f.draft, Stars: f.rate}, &reply)
	if err != nil {
		return err
	}

	if reply.Error != "" {
		return fmt.Errorf("%w: %s", errRemote, reply.Error)
	}

	if reply.Saved {
		fmt.Fprint(c.out, msgRatedSaved)
	} else {
		fmt.Fprint(c.out, msgRatedDropped)
	}

	return nil
}

func (c *client) list(ctx context.Context, f appFlags) error {
	var reply core.EpisodeListResultEvent

	err := c.request(ctx, c.subjects.List, core.EpisodeListRequestEvent{Header: newHeader(), Options: f.listOptions()}, &reply)
	if err != nil {
		return err
	}

	if reply.Error != "" {
		return fmt.Errorf("%w: %s", errRemote, reply.Error)
	}

	sizes, err := c.audioSizes(ctx, f.bucket)
	if err != nil {
		fmt.Fprintf(c.out, msgSizesUnknown, err)
	}

	return printEpisodes(c.out, reply.Episodes, sizes)
}

func (c *client) audioStore(bucket string) (*objectstore.NatsObjectStore, error) {
	js, err := c.conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return objectstore.New(js, bucket)
}

// audioSizes maps every stored audio key to its size in bytes.
func (c *client) audioSizes(ctx context.Context, bucket string) (map[string]uint64, error) {
	store, err := c.audioStore(bucket)
	if err != nil {
		return nil, err
	}

	objects, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	sizes := make(map[string]uint64, len(objects))
	for _, object := range objects {
		sizes[object.Key] = object.Size
	}

	return sizes, nil
}

// printEpisodes writes a table of episodes. A nil sizes map means the audio
// bucket could not be read.
func printEpisodes(out io.Writer, eps []core.Episode, sizes map[string]uint64) error {
	if len(eps) == 0 {
		_, err := fmt.Fprint(out, msgNoEpisodes)

		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tLENGTH\tSAVED\tAUDIO\tSIZE")

	for _, ep := range eps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ep.Topic, fileutil.FormatDuration(time.Duration(ep.DurationSec)*time.Second), ep.CreatedAt.Format(time.DateOnly),
			ep.StorageKey, audioSize(sizes, ep.StorageKey))
	}

	return tw.Flush()
}

func audioSize(sizes map[string]uint64, key string) string {
	if sizes == nil {
		return sizeUnknown
	}

	size, ok := sizes[key]
	if !ok {
		return sizeMissing
	}

	return fileutil.FormatFileSize(int64(size))
}

func (c *client) remove(ctx context.Context, f appFlags) error {
	var reply core.EpisodeDeleteResultEvent

	err := c.request(ctx, c.subjects.Delete, core.EpisodeDeleteRequestEvent{Header: newHeader(), Topic: f.topic, Minutes: f.minutes}, &reply)
	if err != nil {
		return err
	}

	if reply.Error != "" {
		return fmt.Errorf("%w: %s", errRemote, reply.Error)
	}

	fmt.Fprintf(c.out, msgDeleted, f.topic, f.minutes)

	return nil
}
