package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	docopt "github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"

	"github.com/fakesmtpd/fakesmtpd/helpers"
	"github.com/fakesmtpd/fakesmtpd/mbox"
	"github.com/fakesmtpd/fakesmtpd/smtp"
)

const version = "1.0.0"

const usage = `FakeSMTPd - SMTP server for testing mail functionality.

Accepted mail is appended to an mbox file or delivered to a maildir.
FakeSMTPd never relays mail anywhere.

Usage:
  fakesmtpd [options]

Options:
  -o FILE --output-filename FILE  Output mbox file, - for stdout [default: -].
  -b IP --bind IP                 IP address to listen on [default: 127.0.0.1].
  -p PORT --port PORT             SMTP port to listen on [default: 25].
  -m DIR --maildir DIR            Deliver mail to maildir DIR instead of mbox.
  -c FILE --config FILE           Load settings from a JSON config file.
  -d --debug                      Log protocol traffic.
  -h --help                       Show this help.
  --version                       Show the version.
`

type options struct {
	OutputFilename string `docopt:"--output-filename"`
	Bind           string `docopt:"--bind"`
	Port           int    `docopt:"--port"`
	Maildir        string `docopt:"--maildir"`
	Config         string `docopt:"--config"`
	Debug          bool   `docopt:"--debug"`
}

// fileConfig mirrors the JSON configuration file accepted by --config.
// Keys present in the file override the command line.
type fileConfig struct {
	OutputFilename string `json:"output_filename"`
	Bind           string `json:"bind"`
	Port           int    `json:"port"`
	Hostname       string `json:"hostname"`
}

func main() {
	parsed, err := docopt.ParseArgs(usage, os.Args[1:], "FakeSMTPd "+version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var opts options
	if err := parsed.Bind(&opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	hostname := ""
	if opts.Config != "" {
		var conf fileConfig
		if err := helpers.DecodeFile(opts.Config, &conf); err != nil {
			log.Fatalf("Could not load config: %v", err)
		}
		if conf.OutputFilename != "" {
			opts.OutputFilename = conf.OutputFilename
		}
		if conf.Bind != "" {
			opts.Bind = conf.Bind
		}
		if conf.Port != 0 {
			opts.Port = conf.Port
		}
		hostname = conf.Hostname
	}

	srv := smtp.NewServer(smtp.Config{
		Hostname: hostname,
		Bind:     opts.Bind,
		Port:     opts.Port,
	}, selectHandler(opts))

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.Infof("received %v, shutting down", sig)
		srv.Stop()
	}()

	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func selectHandler(opts options) smtp.Handler {
	if opts.Maildir != "" {
		printer, err := mbox.NewMaildirPrinter(opts.Maildir)
		if err != nil {
			log.Fatalf("Could not open maildir: %v", err)
		}
		return printer.Print
	}
	return mbox.NewPrinter(opts.OutputFilename).Print
}
