package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"esplit/epub"
	"esplit/state"
	"esplit/toc"
)

// Contents is toc command action, it prints table of contents of the book.
func Contents(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("toc")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		enc, err := ianaindex.IANA.Encoding(cp)
		if err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
		}
		env.CodePage = enc
	}
	return printContents(src, env.CodePage, os.Stdout, log)
}

func printContents(src string, cp encoding.Encoding, out io.Writer, log *zap.Logger) error {
	book, err := epub.Open(src, cp, log)
	if err != nil {
		return fmt.Errorf("unable to read book (%s): %w", src, err)
	}
	entries := toc.Flatten(book.TOC)
	if len(entries) == 0 {
		log.Warn("Book has no table of contents", zap.String("file", src))
		return nil
	}
	fmt.Fprintf(out, "%s\n\n%s", book.Metadata.Title, toc.Print(entries))
	return nil
}
