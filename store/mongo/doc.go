// Package mongo implements store.Store using the official MongoDB driver.
// Suitable for distributed deployments requiring horizontal scaling and
// flexible schema evolution. Reviewer decisions are applied with a filtered
// FindOneAndUpdate so concurrent reviews of the same checkpoint cannot both
// win.
//
// The caller owns the *mongo.Client lifecycle -- this package never closes
// it. Pass a database handle through the constructor:
//
//	import (
//	    "go.mongodb.org/mongo-driver/v2/mongo"
//	    mongostore "github.com/xraph/payflow/store/mongo"
//	)
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	store := mongostore.New(client.Database("payflow"))
//	store.Migrate(ctx)
package mongo
