package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/location-agent/internal/metrics"
	"github.com/benmeehan/location-agent/internal/service_registry"
	"github.com/benmeehan/location-agent/internal/stream"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the agent configuration file")
	flag.Parse()

	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	level := zerolog.InfoLevel
	if config.LogLevel != "" {
		level, err = zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid log level")
		}
	}
	logger = logger.Level(level)

	// Generate a unique MQTT Client ID by appending a UUID
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	logger.Info().Msgf("Using MQTT Client ID: %s", config.MQTT.ClientID)

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load device information")
	}
	logger = logger.With().Str("device_id", deviceInfo.GetDeviceID()).Logger()

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient)
	err = mqttClient.Initialize(mqtt.Options{
		Broker:        config.MQTT.Broker,
		ClientID:      config.MQTT.ClientID,
		CACertificate: config.MQTT.CACertificate,
		Username:      config.MQTT.Username,
		Password:      config.MQTT.Password,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	hub := stream.NewHub(logger)
	defer hub.Close()

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, metrics.New(), hub, logger)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, deviceInfo); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop services cleanly")
	}
	mqttClient.Disconnect(250)
}
