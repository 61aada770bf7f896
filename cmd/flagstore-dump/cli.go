// Copyright 2024 The flagstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/codegangsta/cli"

	"github.com/bpowers/flagstore"
	"github.com/bpowers/flagstore/internal/flaginfo"
	"github.com/bpowers/flagstore/internal/flagtable"
	"github.com/bpowers/flagstore/internal/flagvalue"
	"github.com/bpowers/flagstore/internal/format"
	"github.com/bpowers/flagstore/internal/packagetable"
)

var usage = `
	flagstore-dump prints storage files in a readable form and turns their
	JSON projection back into binary files, which is how test fixtures are
	made:

		flagstore-dump print --file pkg.map --type package_map --format json > pkg.json
		flagstore-dump write-bytes --input-file pkg.json --output-file pkg.map --type package_map
	`

var errMissingFlag = errors.New("missing required flag")

type dumpCli struct {
	app    *cli.App
	out    io.Writer
	logger *slog.Logger
}

func newDumpCli(out, errOut io.Writer) *dumpCli {
	d := &dumpCli{out: out}
	app := cli.NewApp()
	app.Name = "flagstore-dump"
	app.Usage = usage
	app.Writer = out
	app.ErrWriter = errOut
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log debug output to stderr",
		},
	}
	app.Before = func(c *cli.Context) error {
		level := slog.LevelWarn
		if c.Bool("verbose") {
			level = slog.LevelDebug
		}
		d.logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
		return nil
	}

	fileTypeFlag := cli.StringFlag{
		Name:  "type, t",
		Usage: "storage file kind: package_map, flag_map, flag_val or flag_info",
	}
	formatFlag := cli.StringFlag{
		Name:  "format",
		Usage: "output format: text or json",
		Value: "text",
	}

	app.Commands = []cli.Command{
		{
			Name:  "print",
			Usage: "Prints one storage file.",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "file, f", Usage: "storage file to print"},
				fileTypeFlag,
				formatFlag,
			},
			Action: d.cmdPrint,
		},
		{
			Name:  "list",
			Usage: "Lists every flag of a container with its value.",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "package-map", Usage: "package map file"},
				cli.StringFlag{Name: "flag-map", Usage: "flag map file"},
				cli.StringFlag{Name: "flag-val", Usage: "flag value file"},
				cli.StringFlag{Name: "flag-info", Usage: "flag info file (optional)"},
				formatFlag,
			},
			Action: d.cmdList,
		},
		{
			Name:  "write-bytes",
			Usage: "Encodes the JSON printed by 'print --format json' back into a storage file.",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "input-file, i", Usage: "JSON input"},
				cli.StringFlag{Name: "output-file, o", Usage: "storage file to write"},
				fileTypeFlag,
			},
			Action: d.cmdWriteBytes,
		},
		{
			Name:  "version",
			Usage: "Prints the format version of a storage file.",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "file, f", Usage: "storage file"},
			},
			Action: d.cmdVersion,
		},
		{
			Name:  "create-info",
			Usage: "Derives a fresh flag info file from a package map and flag map.",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "package-map", Usage: "package map file"},
				cli.StringFlag{Name: "flag-map", Usage: "flag map file"},
				cli.StringFlag{Name: "output-file, o", Usage: "flag info file to write"},
			},
			Action: d.cmdCreateInfo,
		},
	}
	d.app = app
	return d
}

func (d *dumpCli) run(args []string) error {
	return d.app.Run(args)
}

func required(c *cli.Context, names ...string) error {
	var missing []string
	for _, name := range names {
		if c.String(name) == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: %w: %s", c.Command.Name, errMissingFlag, strings.Join(missing, ", "))
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s): %v: %w", path, err, flagstore.ErrFileReadFail)
	}
	return b, nil
}

// decode parses buf as a storage file of kind t.
func decode(t format.FileType, buf []byte) (any, error) {
	switch t {
	case format.PackageMap:
		return packagetable.Decode(buf)
	case format.FlagMap:
		return flagtable.Decode(buf)
	case format.FlagVal:
		return flagvalue.Decode(buf)
	case format.FlagInfo:
		return flaginfo.Decode(buf)
	}
	return nil, fmt.Errorf("unknown file type %d", t)
}

// encode parses the JSON projection of a storage file of kind t and
// serializes it.
func encode(t format.FileType, in []byte) ([]byte, error) {
	switch t {
	case format.PackageMap:
		var v packagetable.Table
		if err := json.Unmarshal(in, &v); err != nil {
			return nil, err
		}
		return v.Encode()
	case format.FlagMap:
		var v flagtable.Table
		if err := json.Unmarshal(in, &v); err != nil {
			return nil, err
		}
		return v.Encode()
	case format.FlagVal:
		var v flagvalue.List
		if err := json.Unmarshal(in, &v); err != nil {
			return nil, err
		}
		return v.Encode()
	case format.FlagInfo:
		var v flaginfo.List
		if err := json.Unmarshal(in, &v); err != nil {
			return nil, err
		}
		return v.Encode()
	}
	return nil, fmt.Errorf("unknown file type %d", t)
}

func (d *dumpCli) writeJSON(v any) error {
	enc := json.NewEncoder(d.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cmdPrint implements the "print" subcommand.
func (d *dumpCli) cmdPrint(c *cli.Context) error {
	if err := required(c, "file", "type"); err != nil {
		return err
	}
	t, err := format.ParseFileType(c.String("type"))
	if err != nil {
		return err
	}
	buf, err := readFile(c.String("file"))
	if err != nil {
		return err
	}
	v, err := decode(t, buf)
	if err != nil {
		return fmt.Errorf("decode %s: %w", c.String("file"), err)
	}
	d.logger.Debug("decoded storage file", "path", c.String("file"), "type", t, "bytes", len(buf))

	switch c.String("format") {
	case "json":
		return d.writeJSON(v)
	case "text":
		return d.printText(v)
	}
	return fmt.Errorf("unknown --format %q", c.String("format"))
}

func printPrefix(w io.Writer, p format.Prefix) {
	fmt.Fprintf(w, "version:\t%d\n", p.Version)
	fmt.Fprintf(w, "container:\t%s\n", p.Container)
	if format.HasFileType(p.Version) {
		fmt.Fprintf(w, "file type:\t%s\n", p.FileType)
	}
	fmt.Fprintf(w, "file size:\t%d\n", p.FileSize)
}

func (d *dumpCli) printText(v any) error {
	w := tabwriter.NewWriter(d.out, 0, 8, 2, ' ', 0)
	switch v := v.(type) {
	case *packagetable.Table:
		printPrefix(w, v.Header.Prefix)
		fmt.Fprintf(w, "packages:\t%d\nbuckets:\t%d\n\n", v.Header.NumElements, v.Header.NumBuckets())
		fmt.Fprintf(w, "PACKAGE\tID\tSTART\tFINGERPRINT\tNEXT\n")
		for _, n := range v.Nodes {
			fmt.Fprintf(w, "%s\t%d\t%d\t%#016x\t%d\n", n.PackageName, n.PackageID, n.BooleanStartIndex, n.Fingerprint, n.NextOffset)
		}
	case *flagtable.Table:
		printPrefix(w, v.Header.Prefix)
		fmt.Fprintf(w, "flags:\t%d\nbuckets:\t%d\n\n", v.Header.NumElements, v.Header.NumBuckets())
		fmt.Fprintf(w, "PACKAGE ID\tFLAG\tTYPE\tID\tNEXT\n")
		for _, n := range v.Nodes {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", n.PackageID, n.FlagName, n.FlagType, n.FlagID, n.NextOffset)
		}
	case *flagvalue.List:
		printPrefix(w, v.Header.Prefix)
		fmt.Fprintf(w, "flags:\t%d\n\n", v.Header.NumFlags)
		fmt.Fprintf(w, "INDEX\tVALUE\n")
		for i, b := range v.BooleanValues {
			fmt.Fprintf(w, "%d\t%t\n", i, b)
		}
	case *flaginfo.List:
		printPrefix(w, v.Header.Prefix)
		fmt.Fprintf(w, "flags:\t%d\n\n", v.Header.NumFlags)
		fmt.Fprintf(w, "INDEX\tREAD WRITE\tSERVER OVERRIDE\tLOCAL OVERRIDE\tSTICKY\n")
		for i, a := range v.Attributes {
			fmt.Fprintf(w, "%d\t%t\t%t\t%t\t%t\n", i, a.IsReadWrite, a.HasServerOverride, a.HasLocalOverride, a.IsSticky)
		}
	default:
		return fmt.Errorf("can't print %T", v)
	}
	return w.Flush()
}

// cmdList implements the "list" subcommand.
func (d *dumpCli) cmdList(c *cli.Context) error {
	if err := required(c, "package-map", "flag-map", "flag-val"); err != nil {
		return err
	}
	var files [4][]byte
	for i, name := range []string{"package-map", "flag-map", "flag-val", "flag-info"} {
		path := c.String(name)
		if path == "" {
			continue
		}
		b, err := readFile(path)
		if err != nil {
			return err
		}
		files[i] = b
	}
	rows, err := flagstore.ListFlags(files[0], files[1], files[2], files[3])
	if err != nil {
		return err
	}

	switch c.String("format") {
	case "json":
		return d.writeJSON(rows)
	case "text":
		w := tabwriter.NewWriter(d.out, 0, 8, 2, ' ', 0)
		for _, r := range rows {
			fmt.Fprintf(w, "%s.%s\t%s\t%t", r.Package, r.Flag, r.Type, r.Value)
			if r.Attributes != nil {
				fmt.Fprintf(w, "\t%s", attributeSummary(*r.Attributes))
			}
			fmt.Fprintln(w)
		}
		return w.Flush()
	}
	return fmt.Errorf("unknown --format %q", c.String("format"))
}

func attributeSummary(a flagstore.FlagAttributes) string {
	var parts []string
	if a.IsReadWrite {
		parts = append(parts, "rw")
	}
	if a.HasServerOverride {
		parts = append(parts, "server-override")
	}
	if a.HasLocalOverride {
		parts = append(parts, "local-override")
	}
	if a.IsSticky {
		parts = append(parts, "sticky")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// cmdWriteBytes implements the "write-bytes" subcommand.
func (d *dumpCli) cmdWriteBytes(c *cli.Context) error {
	if err := required(c, "input-file", "output-file", "type"); err != nil {
		return err
	}
	t, err := format.ParseFileType(c.String("type"))
	if err != nil {
		return err
	}
	in, err := readFile(c.String("input-file"))
	if err != nil {
		return err
	}
	out, err := encode(t, in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.String("input-file"), err)
	}
	// refuse to write something no reader would accept
	if _, err := decode(t, out); err != nil {
		return fmt.Errorf("encoded %s does not decode: %w", t, err)
	}
	if err := os.WriteFile(c.String("output-file"), out, 0644); err != nil {
		return fmt.Errorf("os.WriteFile: %v: %w", err, flagstore.ErrFileCreationFail)
	}
	d.logger.Info("wrote storage file", "path", c.String("output-file"), "type", t, "bytes", len(out))
	return nil
}

// cmdVersion implements the "version" subcommand.
func (d *dumpCli) cmdVersion(c *cli.Context) error {
	if err := required(c, "file"); err != nil {
		return err
	}
	v, err := flagstore.StorageFileVersion(c.String("file"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(d.out, v)
	return err
}

// cmdCreateInfo implements the "create-info" subcommand.
func (d *dumpCli) cmdCreateInfo(c *cli.Context) error {
	if err := required(c, "package-map", "flag-map", "output-file"); err != nil {
		return err
	}
	return flagstore.CreateFlagInfo(c.String("package-map"), c.String("flag-map"), c.String("output-file"))
}
