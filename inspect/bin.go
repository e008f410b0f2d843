package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	. "github.com/ZenLiuCN/spellbook"
	"github.com/ZenLiuCN/spellbook/archive"
	"github.com/ZenLiuCN/spellbook/rules"
	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Usage = "host archive inspector"
	app.Name = "Inspect"
	app.Description = "inspects host archives and checks symbol rule tables against host versions"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
	}
	app.Before = func(ctx *cli.Context) error {
		if ctx.Bool("debug") {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			SetLogger(l)
		}
		return nil
	}
	app.Commands = []*cli.Command{
		{Name: "census",
			Action: census,
			Usage:  "list classes of archives",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "pkg", Aliases: []string{"p"}, Usage: "only classes under this package"},
				&cli.IntFlag{Name: "depth", Value: -1, Usage: "sub package depth under pkg, negative for any"},
			},
			Args: true,
		},
		{Name: "version",
			Action: version,
			Usage:  "display manifest version of archives",
			Args:   true,
		},
		{Name: "check",
			Action: check,
			Usage:  "display the candidate each symbol of a rule table picks for a version",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "rules", Aliases: []string{"r"}, Required: true, Usage: "rule table"},
				&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Required: true, Usage: "host version"},
			},
		},
		{Name: "dump",
			Action: dump,
			Usage:  "dump parsed rule tables",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "depth", Value: 4, Usage: "dump depth"},
			},
			Args: true,
		},
		{Name: "probe",
			Action: probe,
			Usage:  "probe an archive as the host would be probed and dump the result",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "package", Aliases: []string{"p"}, Usage: "host package name"},
				&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Usage: "host version, read from the manifest when empty"},
				&cli.IntFlag{Name: "depth", Value: 3, Usage: "dump depth"},
			},
			Args: true,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}

func census(ctx *cli.Context) (err error) {
	pkg := ctx.String("pkg")
	for _, s := range ctx.Args().Slice() {
		var names []string
		if names, err = archive.Classes(s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
		c := NewCensus(names)
		if pkg != "" {
			c = c.InPackage(pkg, ctx.Int("depth"))
		}
		fmt.Printf("%s: %d classes\n", s, len(c))
		for _, n := range c {
			fmt.Println(n)
		}
	}
	return
}

func version(ctx *cli.Context) error {
	for _, s := range ctx.Args().Slice() {
		v, err := archive.ManifestVersion(s)
		if err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
		fmt.Printf("%s: %s\n", s, v)
	}
	return nil
}

func check(ctx *cli.Context) error {
	v, err := ParseVersion(ctx.String("version"))
	if err != nil {
		return err
	}
	t, err := rules.LoadFile(ctx.String("rules"))
	if err != nil {
		return err
	}
	c, err := t.Compile()
	if err != nil {
		return err
	}
	var failed []string
	for _, ch := range c.Select(v) {
		if ch.Err != nil {
			failed = append(failed, ch.Symbol)
			fmt.Printf("%-32s FAIL %s\n", ch.Symbol, ch.Err)
			continue
		}
		fmt.Printf("%-32s #%d %s\n", ch.Symbol, ch.Index, ch.Guard)
	}
	if len(failed) > 0 {
		return fmt.Errorf("no candidate for %s at %s", strings.Join(failed, ", "), v)
	}
	return nil
}

func dump(ctx *cli.Context) error {
	d := dumper(ctx.Int("depth"))
	for _, s := range ctx.Args().Slice() {
		t, err := rules.LoadFile(s)
		if err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
		d.Dump(t)
	}
	return nil
}

func dumper(depth int) *spew.ConfigState {
	d := spew.NewDefaultConfig()
	d.MaxDepth = depth
	d.DisablePointerAddresses = true
	return d
}

func probe(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("probe takes exactly one archive")
	}
	g := New(WithDebug(ctx.Bool("debug")))
	p := AttachParams{PackageName: ctx.String("package"), ArchivePath: ctx.Args().First()}
	if v := ctx.String("version"); v != "" {
		p.VersionSource = StaticVersion(v)
	}
	<-g.Attach(p)
	s := g.Snapshot()
	dumper(ctx.Int("depth")).Dump(s)
	if s.Version == nil {
		return fmt.Errorf("host version not detected")
	}
	return nil
}
