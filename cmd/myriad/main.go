package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"

	"github.com/myriad-irc/myriad"
)

func main() {
	configFile := flag.String("config", "config.toml", "Configuration file.")
	debug := flag.Bool("debug", false, "Enable debug logging.")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		TimestampFormat: "2006-01-02 15:04:05",
		HideKeys:        true,
	})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := myriad.LoadConfig(*configFile)
	if err != nil {
		log.WithError(err).Fatal("configuration problem")
	}

	server := myriad.NewServer(cfg, log)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		server.Shutdown()
	}()

	if err := server.Listen(); err != nil {
		log.WithError(err).Fatal("unable to serve")
	}

	log.Info("server shutdown cleanly")
}
