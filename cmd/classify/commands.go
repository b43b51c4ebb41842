package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/classifyjson"
	"github.com/hengadev/classify/providers/s3store"
	"github.com/hengadev/classify/providers/sqlitestore"
	"github.com/hengadev/classify/providers/vaultstore"
	"github.com/hengadev/classify/settings"
)

const stdio = "-"

// loadCLIConfig reads .env, the configuration file and the environment, in
// that order of precedence from lowest to highest.
func loadCLIConfig(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	required := path != ""
	if !required {
		path = defaultConfigPath
	}
	config, err := LoadConfig(path, required)
	if err != nil {
		return nil, err
	}
	config.ApplyEnvironment()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func runConvert(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	from := fs.String("from", "auto", "Input encoding (json, yaml or auto)")
	to := fs.String("to", "auto", "Output encoding (json, yaml or auto)")
	compact := fs.Bool("compact", false, "Write JSON without indentation")
	check := fs.Bool("check", false, "Verify reference markers before writing")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: classify convert [options] <input> <output>\n\nUse - for stdin or stdout.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("convert needs an input and an output")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	inEnc, err := resolveEncoding(*from, in)
	if err != nil {
		return err
	}
	outEnc, err := resolveEncoding(*to, out)
	if err != nil {
		return err
	}

	data, err := readInput(in, stdin)
	if err != nil {
		return err
	}
	tree, err := settings.Decode(inEnc, data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", in, err)
	}
	if *check {
		if _, err := classifyjson.CheckReferences(tree); err != nil {
			return fmt.Errorf("%s has broken references: %w", in, err)
		}
	}

	var encoded []byte
	if outEnc == settings.EncodingJSON && *compact {
		encoded, err = classifyjson.Marshal(tree)
		encoded = append(encoded, '\n')
	} else {
		encoded, err = settings.Encode(outEnc, tree)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", out, err)
	}
	return writeOutput(out, encoded, stdout)
}

func runFmt(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fmt", flag.ContinueOnError)
	compact := fs.Bool("compact", false, "Write JSON without indentation")
	write := fs.Bool("w", false, "Write the result back to the file instead of stdout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: classify fmt [options] <file>...\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("fmt needs at least one file")
	}

	format := classifyjson.NewFormat()
	if *compact {
		format = classifyjson.NewFormat(classifyjson.Compact())
	}
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree, err := classifyjson.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		var b strings.Builder
		if err := format.Write(&b, tree); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if !*write {
			if _, err := io.WriteString(stdout, b.String()); err != nil {
				return err
			}
			continue
		}
		if b.String() == string(data) {
			continue
		}
		if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
			return err
		}
		fmt.Fprintln(stdout, path)
	}
	return nil
}

func runRefs(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("refs", flag.ContinueOnError)
	from := fs.String("from", "auto", "Input encoding (json, yaml or auto)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: classify refs [options] <file>...\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("refs needs at least one file")
	}

	failed := 0
	for _, path := range fs.Args() {
		enc, err := resolveEncoding(*from, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree, err := settings.Decode(enc, data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		sum, err := classifyjson.CheckReferences(tree)
		fmt.Fprintf(stdout, "%s: %d referable, %d references\n", path, sum.Referables, sum.References)
		if err == nil {
			continue
		}
		failed++
		var problems errsx.Map
		if !errors.As(err, &problems) {
			fmt.Fprintf(stdout, "  %v\n", err)
			continue
		}
		keys := make([]string, 0, len(problems))
		for k := range problems {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s: %v\n", k, problems[k])
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents have broken references", failed, fs.NArg())
	}
	return nil
}

func runPush(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration file (default classify.yaml if present)")
	name := fs.String("name", "", "Name to store the document under (default: base name of the file)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: classify push [options] <file>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("push needs exactly one file")
	}
	path := fs.Arg(0)
	if *name == "" {
		*name = filepath.Base(path)
	}

	config, err := loadCLIConfig(*configPath)
	if err != nil {
		return err
	}
	logger := config.Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// refuse documents the store could not give back
	if _, err := settings.Decode(settings.EncodingFor(*name), data); err != nil {
		return fmt.Errorf("%s is not a valid %s document: %w", path, settings.EncodingFor(*name), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, closeStore, err := openStore(ctx, config)
	if err != nil {
		return err
	}
	defer closeStore()

	start := time.Now()
	if err := store.Save(ctx, *name, data); err != nil {
		return fmt.Errorf("failed to push %s: %w", *name, err)
	}
	logger.Info("document pushed", "name", *name, "backend", config.Store.Backend, "bytes", len(data), "duration", time.Since(start))
	fmt.Fprintf(stdout, "pushed %s (%d bytes) to %s\n", *name, len(data), config.Store.Backend)
	return nil
}

func runPull(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration file (default classify.yaml if present)")
	revision := fs.String("revision", "", "Revision id to pull instead of the latest (sqlite store only)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: classify pull [options] <name> [output]\n\nThe output defaults to stdout.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return errors.New("pull needs a name and at most one output")
	}
	name, out := fs.Arg(0), stdio
	if fs.NArg() == 2 {
		out = fs.Arg(1)
	}

	config, err := loadCLIConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, closeStore, err := openStore(ctx, config)
	if err != nil {
		return err
	}
	defer closeStore()

	var data []byte
	if *revision != "" {
		revisions, ok := store.(*sqlitestore.Store)
		if !ok {
			return fmt.Errorf("%w: revisions need the sqlite backend, not %s", classify.ErrInvalidConfiguration, config.Store.Backend)
		}
		data, err = revisions.LoadRevision(ctx, *revision)
	} else {
		data, err = store.Load(ctx, name)
	}
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", name, err)
	}
	config.Logger().Info("document pulled", "name", name, "backend", config.Store.Backend, "bytes", len(data))
	return writeOutput(out, data, stdout)
}

func runHistory(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration file (default classify.yaml if present)")
	keep := fs.Int("prune", 0, "Delete all but the newest N revisions")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: classify history [options] <name>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("history needs exactly one name")
	}
	name := fs.Arg(0)

	config, err := loadCLIConfig(*configPath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(config.Store.Backend, "sqlite") {
		return fmt.Errorf("%w: history needs the sqlite backend, not %s", classify.ErrInvalidConfiguration, config.Store.Backend)
	}
	store, err := sqlitestore.Open(config.Store.SQLite.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *keep > 0 {
		n, err := store.Prune(ctx, name, *keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "pruned %d revisions of %s\n", n, name)
	}

	revisions, err := store.Revisions(ctx, name)
	if err != nil {
		return err
	}
	if len(revisions) == 0 {
		return settings.NewNotFoundError(name)
	}
	for _, r := range revisions {
		fmt.Fprintf(stdout, "%4d  %s  %s  %d bytes\n", r.Seq, r.ID, r.CreatedAt.UTC().Format(time.RFC3339), r.Size)
	}
	return nil
}

func runInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	output := fs.String("output", defaultConfigPath, "Path of the configuration file")
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*output); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *output)
	}
	if err := SaveConfig(DefaultConfig(), *output); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Created %s\n", *output)
	return nil
}

// openStore builds the settings store selected by the configuration. The
// returned function releases it.
func openStore(ctx context.Context, config *Config) (settings.Store, func() error, error) {
	noop := func() error { return nil }
	s := config.Store
	switch strings.ToLower(s.Backend) {
	case "file":
		store, err := settings.NewFileStore(s.Dir)
		return store, noop, err
	case "sqlite":
		store, err := sqlitestore.Open(s.SQLite.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case "s3":
		store, err := s3store.New(ctx, s3store.Config{
			Bucket: s.S3.Bucket,
			Prefix: s.S3.Prefix,
			Region: s.S3.Region,
		})
		if err != nil {
			return nil, noop, err
		}
		return reliable(store, config)
	case "vault":
		store, err := vaultstore.New(vaultstore.Config{
			Mount:  s.Vault.Mount,
			Prefix: s.Vault.Prefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return reliable(store, config)
	}
	return nil, noop, fmt.Errorf("%w: unknown backend '%s'", classify.ErrInvalidConfiguration, s.Backend)
}

// reliable wraps a remote store with retries and a circuit breaker.
func reliable(store settings.Store, config *Config) (settings.Store, func() error, error) {
	r, err := settings.NewReliableStore(store, settings.ReliabilityConfig{Logger: config.Logger()})
	return r, func() error { return nil }, err
}

// resolveEncoding parses an encoding flag, deriving auto from the path.
// Stdio defaults to JSON.
func resolveEncoding(flagValue, path string) (settings.Encoding, error) {
	enc, err := settings.ParseEncoding(flagValue)
	if err != nil {
		return enc, err
	}
	if enc == settings.EncodingAuto {
		if path == stdio {
			return settings.EncodingJSON, nil
		}
		enc = settings.EncodingFor(path)
	}
	return enc, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == stdio {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == stdio {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
