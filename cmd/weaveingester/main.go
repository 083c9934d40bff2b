package main

import (
	"database/sql"
	"os"
	"regexp"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/weaveproject/weaveio/internal/common"
	"github.com/weaveproject/weaveio/internal/common/app"
	"github.com/weaveproject/weaveio/internal/common/config"
	"github.com/weaveproject/weaveio/internal/common/database"
	"github.com/weaveproject/weaveio/internal/ingester"
	"github.com/weaveproject/weaveio/internal/ingester/archivedb"
	"github.com/weaveproject/weaveio/internal/ingester/configuration"
	"github.com/weaveproject/weaveio/internal/validator"
)

const CustomConfigLocation string = "config"

var nightPattern = regexp.MustCompile(`^\d{8}$`)

func init() {
	pflag.String(CustomConfigLocation, "", "Fully qualified path to application configuration file")
	pflag.String("night", "", "Night to ingest, formatted YYYYMMDD")
	pflag.Bool("validate", false, "Run archive consistency checks after the ingest")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var ingesterConfig configuration.IngesterConfiguration
	userSpecifiedConfig := viper.GetString(CustomConfigLocation)
	common.LoadConfig(&ingesterConfig, "./config/weaveingester", userSpecifiedConfig)

	if err := config.Validate(ingesterConfig); err != nil {
		config.LogValidationErrors(err)
		log.Fatal("Invalid configuration")
	}
	night := viper.GetString("night")
	if night == "" {
		night = os.Getenv("NIGHT")
	}
	if !nightPattern.MatchString(night) {
		log.Fatal("--night must be 8 digits (YYYYMMDD)")
	}

	db, err := sql.Open("postgres", database.CreateConnectionString(ingesterConfig.Postgres.Connection))
	if err != nil {
		log.WithError(err).Fatal("Failed to open archive database")
	}
	defer db.Close()
	if !ingesterConfig.DryRun {
		if err := archivedb.CreateSchema(db); err != nil {
			log.WithError(err).Fatal("Failed to create archive schema")
		}
	}

	if ingesterConfig.MetricsPort > 0 {
		shutdownMetricServer := common.ServeMetrics(ingesterConfig.MetricsPort)
		defer shutdownMetricServer()
	}

	ctx := app.CreateContextWithShutdown()
	sink := archivedb.NewArchiveSink(db, ingesterConfig.DryRun)
	if err := ingester.New(&ingesterConfig, sink).IngestNight(ctx, night); err != nil {
		log.WithError(err).Fatal("Ingest failed")
	}

	if viper.GetBool("validate") {
		if err := validator.New(db, "postgres").Validate(ctx); err != nil {
			log.WithError(err).Fatal("Archive validation failed")
		}
	}
}
