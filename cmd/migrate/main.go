// Command migrate applies the schema to the configured database. It can
// also copy every table from a local sqlite file, which is how a dev
// install moves to postgres, and seed a development tenant.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/logger"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
)

const copyBatchSize = 500

func main() {
	copyFrom := flag.String("copy-from", "", "sqlite file to copy all rows from")
	seedDev := flag.String("seed-dev", "", "create a development tenant with this business name")
	flag.Parse()

	cfg := config.LoadConfig()
	closeLog := logger.Init(cfg)
	defer closeLog()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	if *copyFrom != "" {
		source, err := gorm.Open(sqlite.Open(*copyFrom), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Str("path", *copyFrom).Msg("Failed to open sqlite source")
		}
		log.Info().Str("path", *copyFrom).Msg("Copying data from sqlite")
		if err := copyAll(source, db); err != nil {
			log.Fatal().Err(err).Msg("Copy failed")
		}
	}

	if *seedDev != "" {
		if err := seed(db, cfg, *seedDev); err != nil {
			log.Fatal().Err(err).Msg("Seeding development tenant failed")
		}
	}
	log.Info().Msg("Migration completed")
}

// copyAll copies tables in dependency order. Rows already present in the
// destination are left alone, so the copy can be re-run.
func copyAll(source, dest *gorm.DB) error {
	for _, model := range models.All() {
		rows := reflect.New(reflect.SliceOf(reflect.TypeOf(model).Elem())).Interface()
		if err := source.Find(rows).Error; err != nil {
			return fmt.Errorf("read %T: %w", model, err)
		}

		n := reflect.ValueOf(rows).Elem().Len()
		if n == 0 {
			continue
		}
		err := dest.Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, copyBatchSize).Error
		})
		if err != nil {
			return fmt.Errorf("write %T: %w", model, err)
		}
		log.Info().Str("table", fmt.Sprintf("%T", model)).Int("rows", n).Msg("Copied table")
	}
	return nil
}

// seed creates a DEV_ tenant with one simulated channel and prints a
// session token for it.
func seed(db *gorm.DB, cfg *config.Config, businessName string) error {
	ctx := context.Background()
	st := store.New(db)

	id := uuid.NewString()
	wabaID := models.DevWABAPrefix + id
	tenant := &models.Tenant{Base: models.Base{ID: id}, BusinessName: businessName, WabaID: wabaID}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		return err
	}
	phones := []models.PhoneNumber{{PhoneNumberID: "DEV_PN_" + tenant.ID, TelNumber: "+1 555 0100", Name: businessName}}
	if err := st.ConnectChannel(ctx, tenant.ID, wabaID, "", phones); err != nil {
		return err
	}
	log.Info().Str("tenant_id", tenant.ID).Str("waba_id", wabaID).Msg("Development tenant created")

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, no session token issued")
		return nil
	}
	token, err := auth.Issue(cfg.JWTSecret, tenant.ID, "dev@"+tenant.ID, 30*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
