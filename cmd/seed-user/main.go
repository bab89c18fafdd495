// Command seed-user creates an editor account or resets its password.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"advisor-twin/internal/auth"
	"advisor-twin/internal/config"
	"advisor-twin/internal/domain"
	"advisor-twin/internal/repository/sqldb"
	"advisor-twin/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	username := flag.String("username", "", "account name (the editor's email)")
	password := flag.String("password", "", "initial password, at least 6 characters")
	update := flag.Bool("update", false, "overwrite the password of an existing account")
	flag.Parse()

	if err := run(logger, *username, *password, *update); err != nil {
		logger.Errorf("seed user: %v", err)
		os.Exit(1)
	}
}

func run(logger *logrus.Logger, username, password string, update bool) error {
	username = service.NormalizeUsername(username)
	if username == "" || len(password) < service.MinPasswordLength {
		flag.Usage()
		return errors.New("username and a password of at least 6 characters are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dsn := cfg.Database.Path
	if cfg.Database.Driver == string(sqldb.DialectPostgres) {
		dsn = cfg.Database.DSN
	}
	db, err := sqldb.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sqldb.Migrate(ctx, db, logger); err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	users := db.Store().Users
	if update {
		ok, err := users.UpdatePassword(ctx, username, hash)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no account named " + username)
		}
		logger.WithField("username", username).Info("password updated")
		return nil
	}

	id, err := users.Create(ctx, &domain.User{Username: username, Password: hash})
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"username": username, "id": id}).Info("user created")
	return nil
}
