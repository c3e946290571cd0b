package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/metrics"
	"frta-simulation/internal/mqtt"
	"frta-simulation/internal/server"
	"frta-simulation/internal/sim"
)

func main() {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatalf("failed to create logs directory: %v", err)
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFile, err := os.OpenFile("logs/log_"+timestamp+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg := flag.String("scenario", "scenario.yaml", "YAML or JSON scenario description")
	flag.Parse()

	sc, err := sim.LoadScenario(*cfg)
	if err != nil {
		log.Fatalf("scenario: %v", err)
	}

	sched := sim.NewScheduler()
	bus := eb.NewBus()
	coll := metrics.NewCollector()
	runner := sim.NewRunner(sc, sched, bus, coll)

	if sc.Server.Listen != "" {
		srv := server.New(bus, coll, runner.InjectData)
		srv.Start(sc.Server.Listen)
	}

	if sc.MQTT.Broker != "" {
		bridge, err := mqtt.New(sc.MQTT.Broker, sc.MQTT.ClientID, sc.MQTT.Topic)
		if err != nil {
			log.Printf("mqtt bridge unavailable: %v", err)
		} else {
			defer bridge.Disconnect()
			go bridge.Run(bus.Subscribe())
			if err := bridge.SubscribeCommands(sc.MQTT.Topic+"/cmd", runner.InjectData); err != nil {
				log.Printf("mqtt command subscribe: %v", err)
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		s := <-sigCh
		log.Printf("received signal %v: shutting down early", s)
		sched.Interrupt()
	}()

	log.Printf("starting batch run: %d nodes for %s", sc.Nodes.Count, sc.Duration.Std())
	if err := runner.Run(); err != nil {
		log.Printf("runner error: %v", err)
	}

	if err := coll.Flush(sc.Logging.MetricsFile); err != nil {
		log.Printf("flush-metrics: %v", err)
	} else {
		log.Printf("stats written to %s", sc.Logging.MetricsFile)
	}
}
