package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/weaveproject/weaveio/internal/common"
	"github.com/weaveproject/weaveio/internal/common/app"
	"github.com/weaveproject/weaveio/internal/common/config"
	"github.com/weaveproject/weaveio/internal/queue"
	"github.com/weaveproject/weaveio/internal/queue/configuration"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.String(CustomConfigLocation, "", "Fully qualified path to application configuration file")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var queueConfig configuration.QueueServerConfiguration
	userSpecifiedConfig := viper.GetString(CustomConfigLocation)
	common.LoadConfig(&queueConfig, "./config/weaveio", userSpecifiedConfig)

	if err := config.Validate(queueConfig); err != nil {
		config.LogValidationErrors(err)
		log.Fatal("Invalid configuration")
	}

	log.Info("Starting weaveio queue server...")

	ctx := app.CreateContextWithShutdown()
	if err := queue.New().StartUp(ctx, &queueConfig); err != nil {
		log.WithError(err).Fatal("Queue server failed")
	}
}
