/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/matrix-org/peercall/pkg/config"
	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/profiling"
	"github.com/matrix-org/peercall/pkg/session"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/matrix-org/peercall/pkg/telemetry"
	"github.com/matrix-org/peercall/pkg/webrtc_ext"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	// Parse command line flags.
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	// Initialize logging subsystem (formatting, global logging framework etc).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	// Load the config file from the environment variable or path.
	config, err := config.LoadConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	logrus.SetLevel(config.Level())

	// Functions that are called before exiting, e.g. to stop the profiler.
	deferredFunctions := []func(){}
	defer func() {
		for _, function := range deferredFunctions {
			function()
		}
	}()

	if *cpuProfile != "" {
		stopProfiling, err := profiling.StartCPUProfile(*cpuProfile, logrus.WithField("component", "profiling"))
		if err != nil {
			logrus.WithError(err).Fatal("could not start profiling")
			return
		}
		deferredFunctions = append(deferredFunctions, stopProfiling)
	}
	if *memProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.HeapProfileWriter(*memProfile, logrus.WithField("component", "profiling")))
	}

	// Handle signal interruptions.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.SetupTelemetry(config.Telemetry)
	if err != nil {
		logrus.WithError(err).Fatal("could not set up telemetry")
		return
	}
	if tracerProvider != nil {
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logrus.WithError(err).Warn("failed to flush traces")
			}
		}()
	}

	factory, err := webrtc_ext.NewPeerConnectionFactory(config.WebRTC, logrus.WithField("component", "webrtc"))
	if err != nil {
		logrus.WithError(err).Fatal("could not create peer connection factory")
		return
	}

	newConnection := func() (peer.Connection, error) {
		connection, err := factory.CreatePeerConnection()
		if err != nil {
			return nil, err
		}
		return connection, nil
	}

	var recorder *media.Recorder
	if config.Media.RecordDir != "" {
		recorder = media.NewRecorder(config.Media.RecordDir, logrus.WithField("component", "recorder"))
	}

	relay := signaling.NewClient(config.Relay, logrus.WithField("component", "relay"))
	console := newConsole(os.Stdout, recorder, logrus.WithField("component", "console"))

	controller, err := session.NewController(
		config.Session,
		relay,
		media.NewFileSource(config.Media, logrus.WithField("component", "media")),
		newConnection,
		console,
		logrus.WithField("component", "session"),
	)
	if err != nil {
		logrus.WithError(err).Fatal("could not create session controller")
		return
	}

	relay.OnEnvelope(controller.HandleInboundEnvelope)
	controller.Start()

	go keepConnected(ctx, relay, logrus.WithField("component", "relay"))

	shell := newShell(controller, os.Stdout)
	go func() {
		shell.run(ctx, os.Stdin)
		stop()
	}()

	<-ctx.Done()

	relay.Close()
	controller.Stop()
	<-controller.Done()

	logrus.Info("bye")
}
