// Command token mints an API token for an existing user. It reads the same
// configuration as the API so the secret and issuer match.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/user"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/connection"
	"github.com/Hari1275/sdp-sub000/pkg/config"
	"github.com/Hari1275/sdp-sub000/pkg/logger"
	"github.com/Hari1275/sdp-sub000/pkg/security/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	userID := flag.String("user", "", "id of the user to mint a token for")
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	id, err := uuid.Parse(*userID)
	if err != nil {
		log.Fatalf("invalid -user: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	appLog := logger.New(logger.Options{Level: "warn", Format: "console"})
	defer appLog.Sync()

	db, err := connection.NewDatabase(cfg, appLog.Logger)
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := user.NewRepository(db).FindByID(ctx, id)
	if err != nil {
		appLog.Fatal("Failed to load user", zap.Error(err))
	}
	if !u.IsActive {
		appLog.Fatal("User is inactive", zap.String("user_id", u.ID.String()))
	}

	token, err := auth.NewJWTService(cfg).GenerateToken(u.ID, u.Role, u.Region, u.ManagerID)
	if err != nil {
		appLog.Fatal("Failed to sign token", zap.Error(err))
	}
	fmt.Println(token)
}
