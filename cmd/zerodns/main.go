// Command zerodns is the CLI front-end: "run" starts the recursive-dispatch
// server from a TOML config, "resolve" issues a single one-shot query and
// prints a dig-like rendering of the response. Per spec section 1, the CLI
// itself carries no algorithmic depth — it is a thin, replaceable shell
// around internal/bootstrap and internal/upstream.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jjeffcaii/zerodns-sub000/internal/bootstrap"
	"github.com/jjeffcaii/zerodns-sub000/internal/config"
	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/upstream"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "resolve":
		err = resolveCmd(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "zerodns:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: zerodns run --config <path>")
	fmt.Fprintln(os.Stderr, "       zerodns resolve [--server <endpoint>] [--type <A|...>] [--class IN] [--timeout <secs>] [--short] <domain>")
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	path := fs.String("config", "", "path to the TOML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("run: --config is required")
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}

	rt, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(ctx) }()

	select {
	case <-ctx.Done():
		logging.L().Info().Msg("zerodns: shutdown signal received, draining")
		rt.Close()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func resolveCmd(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	serverFlag := fs.String("server", "", "upstream endpoint to query (default: system resolver)")
	typeFlag := fs.String("type", "A", "query type")
	classFlag := fs.String("class", "IN", "query class")
	timeoutFlag := fs.Int("timeout", 5, "per-query timeout in seconds")
	short := fs.Bool("short", false, "print only the answer data")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("resolve: exactly one domain argument is required")
	}
	domain := rest[0]

	typ, ok := wire.ParseType(*typeFlag)
	if !ok {
		return fmt.Errorf("resolve: unknown query type %q", *typeFlag)
	}
	if *classFlag != "IN" {
		return fmt.Errorf("resolve: only class IN is supported")
	}

	var client upstream.Client
	if *serverFlag == "" {
		client = upstream.NewSystemResolver()
	} else {
		mgr := upstream.NewManager(upstream.NewSystemResolver())
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutFlag)*time.Second)
		defer cancel()
		c, err := mgr.Build(ctx, *serverFlag)
		if err != nil {
			return err
		}
		client = c
	}

	req, err := wire.BuildQuery(uint16(rand.Intn(1<<16)), domain, typ, wire.ClassIN)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutFlag)*time.Second)
	defer cancel()

	resp, err := client.Request(ctx, req)
	if err != nil {
		return err
	}

	printResponse(resp, *short)
	return nil
}

// printResponse renders resp in a dig-like format: header summary, then one
// line per answer record. --short trims it to just the answer data.
func printResponse(msg wire.Message, short bool) {
	if !short {
		flags := msg.Flags()
		fmt.Printf(";; ->>HEADER<<- opcode: QUERY, status: %s, id: %d\n", flags.RCode(), msg.ID())
		fmt.Printf(";; flags: qr=%v rd=%v ra=%v; QUESTION: %d, ANSWER: %d, AUTHORITY: %d, ADDITIONAL: %d\n",
			flags.QR(), flags.RD(), flags.RA(), msg.QDCount(), msg.ANCount(), msg.NSCount(), msg.ARCount())
		fmt.Println()
		fmt.Println(";; ANSWER SECTION:")
	}

	it, err := msg.Answers()
	if err != nil {
		fmt.Fprintln(os.Stderr, "zerodns: malformed answer section:", err)
		return
	}
	for it.Next() {
		rr := it.RR()
		rdata, err := rr.DecodeRData()
		if err != nil {
			fmt.Fprintln(os.Stderr, "zerodns: malformed record:", err)
			continue
		}
		if short {
			fmt.Println(rdataString(rdata))
			continue
		}
		fmt.Printf("%s\t%d\t%s\t%s\t%s\n", rr.Name.String(), rr.TTL, rr.Class, rr.Type, rdataString(rdata))
	}
	if err := it.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "zerodns: malformed answer section:", err)
	}
}

func rdataString(rdata interface{}) string {
	switch v := rdata.(type) {
	case wire.RDataA:
		return v.IP.String()
	case wire.RDataAAAA:
		return v.IP.String()
	case wire.RDataCNAME:
		return v.Target.String()
	case wire.RDataPTR:
		return v.Target.String()
	case wire.RDataMX:
		return fmt.Sprintf("%d %s", v.Preference, v.Exchange.String())
	case wire.RDataSOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d", v.MName.String(), v.RName.String(), v.Serial, v.Refresh, v.Retry, v.Expire, v.Minimum)
	case wire.RDataTXT:
		var strs []string
		for _, s := range v.Strings {
			strs = append(strs, string(s))
		}
		return fmt.Sprintf("%q", strs)
	case wire.RDataOpaque:
		return fmt.Sprintf("\\# %d", len(v.Raw))
	default:
		return "?"
	}
}
