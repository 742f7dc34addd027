// Command sheetsql is the interactive SQL shell over a directory of CSV
// sheets. Statements end with ';'; lines starting with '.' are meta
// commands. A trailing `> path` on a SELECT exports the result instead of
// printing it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/sheetsql/sheetsql/internal/cache"
	"github.com/sheetsql/sheetsql/internal/config"
	"github.com/sheetsql/sheetsql/internal/engine"
	"github.com/sheetsql/sheetsql/internal/exporter"
	"github.com/sheetsql/sheetsql/internal/provider"
	"github.com/sheetsql/sheetsql/internal/storage"
)

var (
	flagConfig  = flag.String("config", "", "Path to YAML config file (optional)")
	flagData    = flag.String("data", "", "Directory of CSV tables (overrides config)")
	flagCache   = flag.String("cache", "", "SQLite result cache file (overrides config)")
	flagRefresh = flag.String("refresh", "", "Cron spec for provider refresh (overrides config)")
	flagFormat  = flag.String("format", "table", "Output format: table, csv, json")
	flagExec    = flag.String("e", "", "Execute a single statement and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadOrDefault(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if *flagData != "" {
		cfg.DataDir = *flagData
	}
	if *flagCache != "" {
		cfg.CachePath = *flagCache
	}
	if *flagRefresh != "" {
		cfg.RefreshSpec = *flagRefresh
	}

	dir, err := provider.NewDirProvider(cfg.DataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}

	var src storage.Provider = dir
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath, dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cache error:", err)
			os.Exit(1)
		}
		defer store.Close()
		src = store
	}

	if cfg.RefreshSpec != "" {
		ref, err := provider.NewRefresher(dir, cfg.RefreshSpec)
		if err != nil {
			fmt.Fprintln(os.Stderr, "refresh error:", err)
			os.Exit(1)
		}
		ref.Start()
		defer ref.Stop()
	}

	sess := storage.NewSession(src)
	sh := &shell{sess: sess, dir: dir, format: *flagFormat}

	if *flagExec != "" {
		if err := sh.run(context.Background(), strings.TrimSuffix(strings.TrimSpace(*flagExec), ";")); err != nil {
			fmt.Fprintln(os.Stderr, "ERR:", err)
			os.Exit(1)
		}
		return
	}

	sh.loop()
}

type shell struct {
	sess   *storage.Session
	dir    *provider.DirProvider
	format string
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sheetsql_history")
}

func (sh *shell) loop() {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if p := historyPath(); p != "" {
		if f, err := os.Open(p); err == nil {
			ln.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if p := historyPath(); p != "" {
			if f, err := os.Create(p); err == nil {
				ln.WriteHistory(f)
				f.Close()
			}
		}
	}()

	fmt.Println("sheetsql shell. End statements with ';', '.help' for meta commands.")

	var buf strings.Builder
	for {
		prompt := "sql> "
		if buf.Len() > 0 {
			prompt = " ... "
		}
		raw, err := ln.Prompt(prompt)
		if err != nil {
			// ^C aborts the current statement, ^D / EOF ends the session.
			if err == liner.ErrPromptAborted {
				buf.Reset()
				continue
			}
			fmt.Println()
			return
		}

		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			ln.AppendHistory(line)
			if sh.meta(line) {
				continue
			}
			return
		}

		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			continue
		}

		q := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(buf.String()), ";"))
		buf.Reset()
		if q == "" {
			continue
		}
		ln.AppendHistory(q + ";")

		if err := sh.run(context.Background(), q); err != nil {
			fmt.Println("ERR:", err)
		}
	}
}

// meta handles '.'-prefixed shell commands. It returns false only for the
// quit commands.
func (sh *shell) meta(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".help":
		fmt.Println(`meta commands:
  .help            this help
  .tables          list base tables
  .temp            list session temporary tables
  .drop NAME       drop a temporary table
  .clear           drop all temporary tables
  .format FMT      set output format (table, csv, json)
  .refresh         reload CSV files on next access
  .quit / .exit    leave the shell`)
	case ".tables":
		names, err := sh.dir.List()
		if err != nil {
			fmt.Println("ERR:", err)
			return true
		}
		for _, n := range names {
			fmt.Println(n)
		}
	case ".temp":
		for _, n := range sh.sess.ListTemp() {
			fmt.Println(n)
		}
	case ".drop":
		if len(fields) != 2 {
			fmt.Println("usage: .drop NAME")
			return true
		}
		if err := sh.sess.DropTemp(fields[1]); err != nil {
			fmt.Println("ERR:", err)
		}
	case ".clear":
		sh.sess.ClearTemp()
	case ".format":
		if len(fields) != 2 {
			fmt.Println("usage: .format table|csv|json")
			return true
		}
		sh.format = fields[1]
	case ".refresh":
		sh.dir.Invalidate()
	case ".quit", ".exit":
		return false
	default:
		fmt.Printf("unknown meta command %q, try .help\n", fields[0])
	}
	return true
}

func (sh *shell) run(ctx context.Context, q string) error {
	stmt, err := engine.Parse(q)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := engine.Execute(ctx, sh.sess, stmt)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	switch s := stmt.(type) {
	case *engine.CreateTableAs:
		fmt.Printf("table %q created (%d rows, %s)\n", s.Name, result.NumRows(), elapsed.Round(time.Millisecond))
		return nil
	case *engine.Select:
		if s.OutputPath != "" {
			if err := exporter.WriteFile(s.OutputPath, result, exporter.Options{}); err != nil {
				return err
			}
			fmt.Printf("exported %d rows to %s (%s)\n", result.NumRows(), s.OutputPath, elapsed.Round(time.Millisecond))
			return nil
		}
	}

	if err := sh.render(result); err != nil {
		return err
	}
	fmt.Printf("(%d rows, %s)\n", result.NumRows(), elapsed.Round(time.Millisecond))
	return nil
}

func (sh *shell) render(t *storage.Table) error {
	switch strings.ToLower(sh.format) {
	case "csv":
		return exporter.ExportCSV(os.Stdout, t, exporter.Options{})
	case "json":
		return exporter.ExportJSON(os.Stdout, t, exporter.Options{PrettyJSON: true})
	default:
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader(t.ColNames())
		tw.SetAutoFormatHeaders(false)
		tw.SetAutoWrapText(false)
		for _, r := range t.Rows {
			row := make([]string, len(r))
			for i, v := range r {
				row[i] = cell(v)
			}
			tw.Append(row)
		}
		tw.Render()
		return nil
	}
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	if ts, ok := v.(time.Time); ok {
		return ts.Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", v)
}
