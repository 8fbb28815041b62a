// Package main is the renaissance server entrypoint.
package main

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"renaissance/internal/bot"
	"renaissance/internal/config"
	"renaissance/internal/events"
	"renaissance/internal/log"
	"renaissance/internal/network"
	"renaissance/internal/services/cluster"
	"renaissance/internal/session"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

var (
	rootCmd = &cobra.Command{
		Use:   "renaissance",
		Short: "Turn-based board game server and tooling.",
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Starts the game server.",
		RunE:  runServer,
	}

	botCmd = &cobra.Command{
		Use:   "bot",
		Short: "Starts a headless client that plays random legal moves.",
		RunE:  runBot,
	}

	botAddr     string
	botNickname string
	botCapacity int
)

func init() {
	botCmd.Flags().StringVar(&botAddr, "addr", "localhost:25556", "server address")
	botCmd.Flags().StringVar(&botNickname, "nickname", "bot", "nickname to register")
	botCmd.Flags().IntVar(&botCapacity, "capacity", 2, "lobby size to propose when asked")
	rootCmd.AddCommand(serverCmd, botCmd)
}

func runServer(*cobra.Command, []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return errors.Wrap(err, "load config failed")
	}
	log.SetLevel(cfg.LogLevel)

	var publisher events.Publisher = events.NewNop()
	if cfg.NatsURL != "" {
		nats, err := events.NewNats(cfg.NatsURL)
		if err != nil {
			return errors.Wrap(err, "connect event publisher failed")
		}
		publisher = nats
	}
	defer publisher.Close()

	registry := session.NewRegistry(session.Options{
		RequestTimeout:     cfg.RequestTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
		Events:             publisher,
	})
	server := network.NewServer(registry, cfg.HeartbeatInterval, cfg.IdleTimeout)

	if cfg.ConsulAddr != "" {
		port, err := listenPort(cfg.ListenAddr)
		if err != nil {
			return err
		}
		deregister, err := cluster.Register(cfg.ConsulAddr, cfg.ServiceName, port)
		if err != nil {
			return errors.Wrap(err, "consul registration failed")
		}
		defer deregister()
	}

	return server.Listen(cfg.ListenAddr)
}

func runBot(*cobra.Command, []string) error {
	log.SetLevel("info")
	return bot.Run(botAddr, botNickname, botCapacity)
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, errors.Wrap(err, "parse listen address failed")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, errors.Wrap(err, "parse listen port failed")
	}
	return port, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatalln(err)
	}
}
