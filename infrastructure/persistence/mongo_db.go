package persistence

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NewMongoDb connects to the metrics archive. Ping is left to the caller.
func NewMongoDb(host, port, user, password string) (*mongo.Client, error) {
	if host == "" {
		return nil, fmt.Errorf("mongo host not configured")
	}
	uri := fmt.Sprintf("mongodb://%s:%s", host, port)
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(5 * time.Second).SetServerSelectionTimeout(5 * time.Second)
	if user != "" {
		opts.SetAuth(options.Credential{Username: user, Password: password})
	}
	return mongo.Connect(opts)
}
