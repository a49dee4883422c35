// Command storage-init provisions the tables and queue used by onboarding-api.
package main

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

type initConfig struct {
	Debug             bool   `env:"DEBUG"`
	ConnectionString  string `env:"STORAGE_CONNECTION_STRING,required"`
	IntakeTable       string `env:"INTAKE_TABLE" envDefault:"Intake"`
	AppStateTable     string `env:"APP_STATE_TABLE" envDefault:"AppState"`
	IntakeEventsQueue string `env:"INTAKE_EVENTS_QUEUE" envDefault:"intake-events"`
}

func main() {
	var cfg initConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx := context.Background()

	svc, err := aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		log.Fatalf("table service: %v", err)
	}
	createTable := func(ctx context.Context, name string) error {
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		return err
	}
	if err := ensureAll(ctx, []string{cfg.IntakeTable, cfg.AppStateTable}, createTable, tableExists); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	createQueue := func(ctx context.Context, name string) error {
		q, err := azqueue.NewQueueClientFromConnectionString(cfg.ConnectionString, name, nil)
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		return err
	}
	if err := ensureAll(ctx, []string{cfg.IntakeEventsQueue}, createQueue, queueExists); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	log.Info("storage init complete")
}

// ensureAll creates every named resource, treating "already exists" as
// success. Empty names are skipped.
func ensureAll(ctx context.Context, names []string, create func(context.Context, string) error, exists func(error) bool) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := create(ctx, name); err != nil && !exists(err) {
			return err
		}
		log.WithField("name", name).Debug("resource ready")
	}
	return nil
}

func tableExists(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)
}

func queueExists(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == queueAlreadyExists
}
