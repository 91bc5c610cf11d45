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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matrix-org/peercall/pkg/config"
	"github.com/matrix-org/peercall/pkg/relay"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	// Parse command line flags.
	configFilePath := flag.String("config", "config.yaml", "configuration file path")
	flag.Parse()

	// Initialize logging subsystem (formatting, global logging framework etc).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	// Load the config file from the environment variable or path.
	config, err := config.LoadServerConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	logrus.SetLevel(config.Level())
	if config.Level() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logrus.WithField("component", "relay")
	hub := relay.NewHub(config.Server, logger)
	server := &http.Server{
		Addr:              config.Server.ListenAddr(),
		Handler:           relay.NewRouter(hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle signal interruptions.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to shut down gracefully")
		}
	}()

	logger.WithField("addr", server.Addr).Info("relay is listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("relay stopped")
	}
}
