// Package mongorepos implements the repositories on a MongoDB database.
package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/trezcool/matokeo/core"
)

const (
	usersCollection   = "users"
	coursesCollection = "courses"
	marksCollection   = "marks"

	connectTimeout = 20 * time.Second
)

// Connect opens a client on conf.Database.URI and returns the configured database.
func Connect(conf *core.Config) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(conf.Database.URI).
		SetAppName(conf.AppName).
		SetMaxPoolSize(50).
		SetServerSelectionTimeout(10 * time.Second).
		SetConnectTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to MongoDB")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, errors.Wrap(err, "pinging MongoDB")
	}
	return client, client.Database(conf.Database.Name), nil
}

// Disconnect closes the client, waiting at most 10s for in-flight operations.
func Disconnect(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// stringSet only indexes documents where the field is set, so blank values never collide.
func stringSet(field string) bson.M {
	return bson.M{field: bson.M{"$type": "string"}}
}

// EnsureIndexes creates the indexes backing the uniqueness rules. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(stringSet("username")),
			},
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(stringSet("email")),
			},
		},
		coursesCollection: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}, {Key: "academic_year", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "faculty_id", Value: 1}}},
		},
		marksCollection: {
			{
				Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "course_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "course_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

// sortOf maps orderings already filtered against the allowed fields to a mongo sort.
func sortOf(ordering []core.DBOrdering, fallback ...bson.E) bson.D {
	sort := make(bson.D, 0, len(ordering)+len(fallback))
	for _, ord := range ordering {
		dir := -1
		if ord.Ascending {
			dir = 1
		}
		sort = append(sort, bson.E{Key: ord.Field, Value: dir})
	}
	return append(sort, fallback...)
}

// withTransaction runs fn in a transaction. Transactions need a replica set.
func withTransaction(ctx context.Context, client *mongo.Client, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
