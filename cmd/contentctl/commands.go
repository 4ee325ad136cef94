package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/internal/content"
	"github.com/researchlab/labsite/internal/content/service"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

const usage = `usage: contentctl <command> [flags]

commands:
  list SECTION          print a section as stored
  get SECTION ID        print one record
  export [-o FILE]      write the whole document (stdout by default)
  import [-i FILE]      replace the whole document (stdin by default)
  sweep [--dry-run] [--grace 1h]
                        delete uploaded images no record references
  hash-password         read a password from stdin and print the bcrypt
                        hash to put in ADMIN_PASSWORD_HASH

import and sweep edit the store directly and do not see requests the server
is handling; stop the server first or run them against a copy.
`

// serviceCommands are the commands that open the content store.
var serviceCommands = map[string]bool{
	"list": true, "get": true, "export": true, "import": true, "sweep": true,
}

func needsService(args []string) bool {
	return len(args) > 0 && serviceCommands[args[0]]
}

// run dispatches one command. Mutating commands act as the admin named by --as.
func run(ctx context.Context, svc *service.Service, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	as := fs.String("as", "contentctl", "admin name recorded for mutations")
	out := fs.StringP("output", "o", "", "export: write to FILE instead of stdout")
	in := fs.StringP("input", "i", "-", "import: read from FILE, - for stdin")
	dryRun := fs.Bool("dry-run", false, "sweep: report orphans without deleting")
	grace := fs.Duration("grace", service.DefaultSweepGrace, "sweep: skip uploads younger than this")
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	adminCtx := admin.WithPrincipal(ctx, *as)

	switch cmd {
	case "list":
		if fs.NArg() != 1 {
			return usageError(stderr, "list takes exactly one SECTION")
		}
		raw, err := svc.List(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "%s\n", raw)
		return err

	case "get":
		if fs.NArg() != 2 {
			return usageError(stderr, "get takes SECTION and ID")
		}
		rec, err := svc.Get(ctx, fs.Arg(0), fs.Arg(1))
		if err != nil {
			return err
		}
		return writeJSON(stdout, rec)

	case "export":
		doc, err := svc.Export(ctx)
		if err != nil {
			return err
		}
		if *out == "" {
			return writeJSON(stdout, doc)
		}
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if err := writeJSON(f, doc); err != nil {
			f.Close()
			return err
		}
		return f.Close()

	case "import":
		r := stdin
		if *in != "-" {
			f, err := os.Open(*in)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		var doc content.Document
		if err := content.Decode(raw, &doc); err != nil {
			return fmt.Errorf("%w: %v", content.ErrCorrupt, err)
		}
		if doc == nil {
			// null would replace every section with nothing
			return fmt.Errorf("%w: input is not a JSON object", content.ErrCorrupt)
		}
		if err := svc.Import(adminCtx, doc); err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "imported %d sections\n", len(doc))
		return err

	case "sweep":
		rep, err := svc.Sweep(adminCtx, *dryRun, *grace)
		if err != nil {
			return err
		}
		return writeJSON(stdout, rep)

	case "hash-password":
		if fs.NArg() != 0 {
			return usageError(stderr, "hash-password reads the password from stdin")
		}
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return usageError(stderr, "hash-password needs a non-empty password on stdin")
		}
		hash, err := admin.HashPassword(password)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, hash)
		return err

	default:
		return usageError(stderr, fmt.Sprintf("unknown command %q", cmd))
	}
}

func usageError(w io.Writer, msg string) error {
	fmt.Fprintf(w, "contentctl: %s\n\n%s", msg, usage)
	return errUsage
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
