package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the economy core.
const (
	CollWallets       = "wallets"
	CollTransactions  = "transactions"
	CollKeys          = "redemption_keys"
	CollCommissions   = "commissions"
	CollLegacy        = "legacy_commissions"
	CollReferrals     = "referrals"
	CollReferralCodes = "referral_codes"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect establishes a connection to MongoDB
func Connect(ctx context.Context, uri, dbName string) (*MongoDB, error) {
	clientOptions := options.Client().ApplyURI(uri)

	// Set connection timeout
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)

	mongoDB := &MongoDB{
		Client:   client,
		Database: db,
	}

	// Create indexes
	if err := mongoDB.CreateIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return mongoDB, nil
}

// CreateIndexes creates all necessary indexes for the application.
// The unique indexes double as concurrency guards: a duplicate-key error on
// referrals(referred_user_id) is what enforces "one code use per new account".
func (m *MongoDB) CreateIndexes(ctx context.Context) error {
	// Transaction log: queried per wallet, newest first
	txCollection := m.Database.Collection(CollTransactions)
	txIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "wallet_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("wallet_created_at"),
	}
	if _, err := txCollection.Indexes().CreateOne(ctx, txIndex); err != nil {
		return fmt.Errorf("failed to create transaction index: %w", err)
	}

	// Redemption keys: unique code lookup
	keysCollection := m.Database.Collection(CollKeys)
	keyCodeIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("key_code_unique"),
	}
	if _, err := keysCollection.Indexes().CreateOne(ctx, keyCodeIndex); err != nil {
		return fmt.Errorf("failed to create key code index: %w", err)
	}

	// Commissions: one row per (course, trainer), plus the active-rows query
	commCollection := m.Database.Collection(CollCommissions)
	courseTrainerIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "course_id", Value: 1},
			{Key: "trainer_id", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("course_trainer_unique"),
	}
	if _, err := commCollection.Indexes().CreateOne(ctx, courseTrainerIndex); err != nil {
		return fmt.Errorf("failed to create course_trainer index: %w", err)
	}
	courseActiveIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "course_id", Value: 1}, {Key: "is_active", Value: 1}},
		Options: options.Index().SetName("course_active"),
	}
	if _, err := commCollection.Indexes().CreateOne(ctx, courseActiveIndex); err != nil {
		return fmt.Errorf("failed to create course_active index: %w", err)
	}

	// Referrals: a new account may apply exactly one code, ever
	refCollection := m.Database.Collection(CollReferrals)
	referredIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "referred_user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("referred_user_unique"),
	}
	if _, err := refCollection.Indexes().CreateOne(ctx, referredIndex); err != nil {
		return fmt.Errorf("failed to create referred_user index: %w", err)
	}
	referrerIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "referrer_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("referrer_created_at"),
	}
	if _, err := refCollection.Indexes().CreateOne(ctx, referrerIndex); err != nil {
		return fmt.Errorf("failed to create referrer index: %w", err)
	}

	// Referral codes: one per user, unique code string
	codesCollection := m.Database.Collection(CollReferralCodes)
	codeUserIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("code_user_unique"),
	}
	if _, err := codesCollection.Indexes().CreateOne(ctx, codeUserIndex); err != nil {
		return fmt.Errorf("failed to create code user index: %w", err)
	}
	codeIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("referral_code_unique"),
	}
	if _, err := codesCollection.Indexes().CreateOne(ctx, codeIndex); err != nil {
		return fmt.Errorf("failed to create referral code index: %w", err)
	}

	return nil
}

// Disconnect closes the MongoDB connection
func (m *MongoDB) Disconnect(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
