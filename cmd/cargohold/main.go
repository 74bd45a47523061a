package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"cargohold/internal/config"
	"cargohold/internal/constants"
	"cargohold/internal/database"
	"cargohold/internal/logger"
	"cargohold/internal/server"
	"cargohold/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (default: ~/.config/cargohold/config.yaml)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s %s\n", constants.AppDisplayName, version.Version)
		os.Exit(0)
	}

	log := logger.NewLogger(constants.DefaultLogLevel)
	log.Info("%s version %s starting", constants.AppDisplayName, version.Version)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfigFrom(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.WorkingDirectory == "" {
		cwd, err := os.Getwd()
		if err != nil {
			log.Error("Failed to resolve current directory: %v", err)
			os.Exit(1)
		}
		cfg.WorkingDirectory = cwd
		log.Warn("working_directory not set, using %s", cwd)
	}

	if err := config.InitializeWorkingDirectory(cfg.WorkingDirectory); err != nil {
		log.Error("Failed to initialize working directory: %v", err)
		os.Exit(1)
	}

	if err := log.SetWorkDir(cfg.WorkingDirectory); err != nil {
		log.Warn("Failed to enable file logging: %v", err)
	}
	cfg.LogEffectiveValues(log)

	dbPath := filepath.Join(cfg.WorkingDirectory, constants.InternalDir, constants.ServiceDB)
	db, err := database.InitServiceDB(dbPath)
	if err != nil {
		log.Error("Failed to open service database: %v", err)
		os.Exit(1)
	}

	app, err := server.NewApp(cfg, log, db)
	if err != nil {
		log.Error("Failed to initialize application: %v", err)
		os.Exit(1)
	}

	// First run: seed the authority store with the bootstrap admin subject.
	// Credentials must carry its subject id (or username) in the sub claim.
	count, err := app.Authority.CountSubjects()
	if err != nil {
		log.Error("Failed to read authority store: %v", err)
		os.Exit(1)
	}
	if count == 0 {
		subject, err := app.Authority.CreateSubject(constants.BootstrapUsername, "Administrator", constants.RoleAdmin)
		if err != nil {
			log.Error("Failed to create bootstrap subject: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Created bootstrap admin subject:\n")
		fmt.Printf("  Username   : %s\n", subject.Username)
		fmt.Printf("  Subject ID : %s\n", subject.ID)
		fmt.Printf("Issue admin credentials with this subject id (or username) in the sub claim.\n")
		log.Info("Bootstrap: admin subject %q created (%s)", subject.Username, subject.ID)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := server.NewServer(app, addr)

	log.Info("Starting %s server on port %d", constants.AppDisplayName, cfg.Port)
	if err := srv.Start(); err != nil {
		log.Error("Server error: %v", err)
		os.Exit(1)
	}
	log.Close()
}
