package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"docbridge/internal/dbpool"
	"docbridge/internal/domain"
)

type userDoc struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	Name  string             `bson:"name"`
	Email string             `bson:"email"`
	Age   int                `bson:"age"`
}

func (d userDoc) user() domain.User {
	return domain.User{ID: d.ID.Hex(), Name: d.Name, Email: d.Email, Age: d.Age}
}

type mongoRepo struct {
	pool *dbpool.Mongo
	coll *mongo.Collection
}

func NewMongoRepo(pool *dbpool.Mongo, database string) Repository {
	return &mongoRepo{pool: pool, coll: pool.Client().Database(database).Collection(usersCollection)}
}

func (r *mongoRepo) classify(err error) error {
	return dbpool.Classify("mongo", r.pool.SelectionTimeout(), err)
}

func (r *mongoRepo) Create(ctx context.Context, in domain.UserCreate) (string, error) {
	res, err := r.coll.InsertOne(ctx, userDoc{Name: in.Name, Email: in.Email, Age: in.Age})
	if err != nil {
		return "", r.classify(err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (r *mongoRepo) Get(ctx context.Context, id string) (domain.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.User{}, err
	}
	var d userDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, r.classify(err)
	}
	return d.user(), nil
}

func (r *mongoRepo) List(ctx context.Context) ([]domain.User, error) {
	cur, err := r.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, r.classify(err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, r.classify(err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.user())
	}
	return users, nil
}

func (r *mongoRepo) Update(ctx context.Context, id string, u domain.UserUpdate) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	if u.Empty() {
		_, err := r.Get(ctx, id)
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M(u.Fields())})
	if err != nil {
		return r.classify(err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *mongoRepo) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return r.classify(err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// objectID treats a malformed id as a missing document.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return oid, nil
}
