// Package split produces separate books from sections of the source book
// contents.
package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/ianaindex"

	"esplit/config"
	"esplit/epub"
	"esplit/misc"
	"esplit/prompt"
	"esplit/state"
	"esplit/toc"
)

// Run is split command action.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("split")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.Overwrite = cmd.Bool("overwrite")
	if cmd.IsSet("include") {
		env.Cfg.Split.Include = cmd.String("include")
	}

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	req := Request{Level: cmd.Int("level"), Yes: cmd.Bool("yes")}
	if cmd.IsSet("select") {
		s := cmd.String("select")
		req.Selection = &s
	}
	if cmd.IsSet("nav") {
		b := cmd.Bool("nav")
		req.Navigation = &b
	}
	if cmd.IsSet("nav-index") {
		i := cmd.Int("nav-index")
		req.NavigationIndex = &i
	}

	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("input source was not found (%s): %w", src, err)
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	if fi.IsDir() {
		return processDir(ctx, env, src, dst, req, log)
	}

	var ask prompt.Asker
	if env.Interactive && !req.Yes {
		ask = prompt.Console{}
	}
	return processBook(ctx, env, src, dst, req, ask, os.Stdout, log)
}

// processDir splits every book matching configured pattern under dir. Books
// are processed without questions, each into its own directory.
func processDir(ctx context.Context, env *state.LocalEnv, dir, dst string, req Request, log *zap.Logger) (err error) {
	pattern := env.Cfg.Split.Include
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("bad include pattern %q", pattern)
	}

	count := 0
	defer func() {
		if err == nil && count == 0 {
			log.Debug("Nothing to process", zap.String("dir", dir))
		}
	}()

	var errs error
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !ok {
			return nil
		}

		count++
		out := filepath.Join(dst, strings.TrimSuffix(rel, filepath.Ext(rel)))
		if err := processBook(ctx, env, path, out, req, nil, io.Discard, log); err != nil {
			log.Error("Unable to process book", zap.String("file", path), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rel, err))
		}
		return nil
	})
	return multierr.Append(err, errs)
}

// processBook splits single book, dst is destination directory.
func processBook(ctx context.Context, env *state.LocalEnv, src, dst string, req Request, ask prompt.Asker, out io.Writer, log *zap.Logger) (rerr error) {
	cfg := &env.Cfg.Split

	log.Info("Splitting starting", zap.String("from", src))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Splitting ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("splitting panic: %v", r)
		} else {
			log.Info("Splitting completed", zap.Duration("elapsed", time.Since(start)))
		}
	}(time.Now())

	book, err := epub.Open(src, env.CodePage, log)
	if err != nil {
		return fmt.Errorf("unable to read book (%s): %w", src, err)
	}
	entries := toc.Flatten(book.TOC)
	log.Debug("Book opened", zap.String("title", book.Metadata.Title), zap.String("version", book.Version),
		zap.String("toc", book.TOCSource), zap.Int("entries", len(entries)))
	if env.Rpt != nil {
		env.Rpt.StoreContents(src, toc.Print(entries))
	}

	choice, err := Choose(entries, req, cfg.Navigation.Add, cfg.Navigation.SpineIndex, ask, out)
	if err != nil {
		return err
	}
	if choice == nil {
		log.Info("Cancelled, nothing was written")
		return nil
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("unable to create destination directory: %w", err)
	}
	workDir, err := os.MkdirTemp("", misc.GetAppName()+"-")
	if err != nil {
		return fmt.Errorf("unable to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	opts := Options{
		AddNavigation:    choice.AddNavigation,
		NavigationIndex:  choice.NavigationIndex,
		FixZip:           cfg.FixZip,
		CompressionLevel: cfg.CompressionLevel,
		Verify:           cfg.Verify,
	}
	b := &builder{
		env:     env,
		book:    book,
		entries: entries,
		opts:    opts,
		names:   newNamer(dst, cfg.NameCollision, env.Overwrite),
		workDir: workDir,
		log:     log,
	}
	return b.build(ctx, choice.Sections, cfg.Workers, newProgress(len(choice.Sections), cfg.Progress && ask != nil, log))
}

type builder struct {
	env     *state.LocalEnv
	book    *epub.Book
	entries []toc.Entry
	opts    Options
	names   *namer
	workDir string
	log     *zap.Logger
}

// build produces books for sections using up to workers goroutines. Failure
// of a section does not stop others, errors are returned together.
func (b *builder) build(ctx context.Context, sections []toc.Entry, workers int, bar progress) error {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(max(1, workers))

	for _, e := range sections {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return nil
			}
			err := b.section(e)
			if err != nil {
				b.log.Error("Unable to produce section", zap.String("title", e.Title), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("section %q: %w", e.Title, err))
				mu.Unlock()
			}
			bar.Done(e.Title)
			return nil
		})
	}
	_ = g.Wait()
	bar.Finish()

	return multierr.Append(errs, ctx.Err())
}

func (b *builder) section(e toc.Entry) error {
	span, err := toc.SpanOf(b.entries, e.Index)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	cfg := &b.env.Cfg.Split
	name, err := OutputName(cfg.OutputNameTemplate, b.nameValues(e), cfg.OutputExt, cfg.FileNameTransliterate)
	if err != nil {
		b.log.Warn("Unable to prepare output file name, using section title", zap.Error(err))
		name, _ = OutputName("", b.nameValues(e), cfg.OutputExt, cfg.FileNameTransliterate)
	}
	output, reused, err := b.names.claim(name)
	if err != nil {
		return err
	}
	if reused {
		b.log.Warn("Output name collision, earlier section will be replaced", zap.String("file", output))
	}

	lock := b.names.lock(output)
	lock.Lock()
	defer lock.Unlock()

	if err := Assemble(b.book, b.entries, span, output, b.workDir, b.opts, b.log); err != nil {
		return err
	}
	b.log.Info("Section written", zap.String("title", e.Title), zap.String("file", output))

	if b.env.Rpt != nil {
		// problems with contents were reported when section was assembled
		tree := toc.PrintTree(toc.Rebuild(b.entries, span, zap.NewNop()))
		s := config.Section{Number: e.Index + 1, Title: e.Title, Output: output, Tree: tree}
		if err := b.env.Rpt.StoreSection(b.book.Path, s); err != nil {
			b.log.Warn("Unable to store section in debug report", zap.Error(err))
		}
	}
	return nil
}

func (b *builder) nameValues(e toc.Entry) NameValues {
	src := filepath.Base(b.book.Path)
	return NameValues{
		Title:      e.Title,
		Number:     e.Index + 1,
		Level:      e.Level,
		BookTitle:  b.book.Metadata.Title,
		Authors:    b.book.Metadata.Authors,
		Language:   b.book.Metadata.Language,
		SourceFile: strings.TrimSuffix(src, filepath.Ext(src)),
	}
}
