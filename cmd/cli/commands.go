package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/auth"
	"github.com/jaywantadh/BlockStash/internal/engine"
	"github.com/jaywantadh/BlockStash/internal/streaming"
	"github.com/jaywantadh/BlockStash/pkg/env"
	"github.com/jaywantadh/BlockStash/pkg/httpserver"
	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var credentialFlags = []cli.Flag{
	&cli.StringFlag{Name: "access-key", Usage: "file access key"},
	&cli.StringFlag{Name: "access-token", Usage: "signed access token"},
	&cli.StringFlag{Name: "expires", Usage: "token expiry (unix ms)"},
}

func credentials(c *cli.Context) auth.Params {
	return auth.Params{
		AccessKey:   c.String("access-key"),
		AccessToken: c.String("access-token"),
		Expires:     c.String("expires"),
	}
}

func args(c *cli.Context, n int) ([]string, error) {
	if c.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", c.Command.Name, n, c.NArg())
	}
	return c.Args().Slice(), nil
}

var putCommand = &cli.Command{
	Name:      "put",
	Usage:     "Store FILE under URL",
	ArgsUsage: "URL FILE",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "encrypt", Usage: "encrypt blocks with the access key"},
		&cli.BoolFlag{Name: "private", Usage: "require credentials to read"},
		&cli.StringFlag{Name: "content-type", Usage: "content type to record"},
		&cli.BoolFlag{Name: "update", Usage: "replace an existing file"},
	}, credentialFlags...),
	Action: func(c *cli.Context) error {
		a, err := args(c, 2)
		if err != nil {
			return err
		}
		url, path := a[0], a[1]

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		opts := engine.WriteOptions{
			ContentType: c.String("content-type"),
			Private:     c.Bool("private"),
			Encrypted:   c.Bool("encrypt"),
			AccessKey:   c.String("access-key"),
		}
		session, err := eng.Create(c.Context, url, opts)
		if errors.Is(err, engine.ErrExists) && c.Bool("update") {
			session, err = eng.Update(c.Context, url, "PUT", credentials(c), opts)
		}
		if err != nil {
			return err
		}

		if _, err := io.Copy(session, f); err != nil {
			session.Abort()
			return err
		}
		meta, err := session.Close()
		if err != nil {
			return err
		}
		logging.Log.Infof("📦 stored %s: %d bytes in %d blocks", url, meta.FileSize, len(meta.Blocks))
		return nil
	},
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "Write the content of URL to FILE (- for stdout)",
	ArgsUsage: "URL FILE",
	Flags:     credentialFlags,
	Action: func(c *cli.Context) error {
		a, err := args(c, 2)
		if err != nil {
			return err
		}
		url, path := a[0], a[1]

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		meta, err := eng.Stat(c.Context, url)
		if err != nil {
			return err
		}
		if err := eng.Authorize(meta, "GET", credentials(c)); err != nil {
			return err
		}

		body, err := eng.Open(c.Context, meta, streaming.WithProgress(func(p streaming.Progress) {
			logging.Log.Debugf("📥 block %d/%d, %.1f%%", p.Block, p.TotalBlocks, p.Percentage())
		}))
		if err != nil {
			return err
		}
		defer body.Close()

		var out io.Writer = os.Stdout
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		_, err = io.Copy(out, body)
		return err
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve stored files over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "listen address (default :$PORT, or :8080)"},
	},
	Action: func(c *cli.Context) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		addr := c.String("addr")
		if addr == "" {
			addr = ":" + env.GetEnv("PORT", "8080")
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return httpserver.ListenAndServe(ctx, addr, httpserver.New(eng, logging.Log))
	},
}

var statCommand = &cli.Command{
	Name:      "stat",
	Usage:     "Print the inode of URL as JSON",
	ArgsUsage: "URL",
	Action: func(c *cli.Context) error {
		a, err := args(c, 1)
		if err != nil {
			return err
		}
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		meta, err := eng.Stat(c.Context, a[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	},
}

var rmCommand = &cli.Command{
	Name:      "rm",
	Usage:     "Remove the inode of URL",
	ArgsUsage: "URL",
	Action: func(c *cli.Context) error {
		a, err := args(c, 1)
		if err != nil {
			return err
		}
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.Delete(c.Context, a[0]); err != nil {
			return err
		}
		logging.Log.Infof("🗑️ removed %s", a[0])
		return nil
	},
}

var tokenCommand = &cli.Command{
	Name:      "token",
	Usage:     "Sign an access token for METHOD on URL",
	ArgsUsage: "URL METHOD",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "expires-in", Usage: "token lifetime, 0 for none"},
	},
	Action: func(c *cli.Context) error {
		a, err := args(c, 2)
		if err != nil {
			return err
		}
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		meta, err := eng.Stat(c.Context, a[0])
		if err != nil {
			return err
		}

		expires := ""
		if d := c.Duration("expires-in"); d > 0 {
			expires = auth.Expiry(time.Now().Add(d))
		}
		fmt.Fprintf(c.App.Writer, "access_token=%s", auth.Token(meta.AccessKey, a[1], expires))
		if expires != "" {
			fmt.Fprintf(c.App.Writer, "&expires=%s", expires)
		}
		fmt.Fprintln(c.App.Writer)
		return nil
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Print the effective configuration as YAML",
	Action: func(c *cli.Context) error {
		out, err := yaml.Marshal(config.Config)
		if err != nil {
			return err
		}
		_, err = c.App.Writer.Write(out)
		return err
	},
}
