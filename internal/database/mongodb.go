// internal/database/mongodb.go
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client        *mongo.Client
	Messages      *mongo.Collection
	ReadStates    *mongo.Collection
	HiddenThreads *mongo.Collection
	Participants  *mongo.Collection
	Profiles      *mongo.Collection
}

var _ DBAdapter = (*MongoDB)(nil)

func NewMongoDB(uri, database string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, utils.NewStoreUnavailableError("connect to MongoDB", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, utils.NewStoreUnavailableError("ping MongoDB", err)
	}

	slog.Info("Successfully connected to MongoDB", "database", database)

	db := client.Database(database)
	return &MongoDB{
		Client:        client,
		Messages:      db.Collection("direct_messages"),
		ReadStates:    db.Collection("message_read_states"),
		HiddenThreads: db.Collection("hidden_threads"),
		Participants:  db.Collection("conversation_participants"),
		Profiles:      db.Collection("profiles"),
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// Resolution matches BSON datetime precision.
func (m *MongoDB) Resolution() time.Duration { return time.Millisecond }

// EnsureIndexes creates the uniqueness constraints the upserts rely on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	pairIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "counterpartId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, coll := range []*mongo.Collection{m.ReadStates, m.HiddenThreads, m.Participants} {
		if _, err := coll.Indexes().CreateOne(ctx, pairIndex); err != nil {
			return utils.NewStoreUnavailableError(fmt.Sprintf("create index on %s", coll.Name()), err)
		}
	}
	_, err := m.Messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return utils.NewStoreUnavailableError("create message indexes", err)
	}
	return nil
}

// readStateDocument represents the MongoDB document structure for read states
type readStateDocument struct {
	OwnerID       string    `bson:"ownerId"`
	CounterpartID string    `bson:"counterpartId"`
	LastReadAt    time.Time `bson:"lastReadAt"`
}

// hiddenThreadDocument represents the MongoDB document structure for hidden threads
type hiddenThreadDocument struct {
	OwnerID       string    `bson:"ownerId"`
	CounterpartID string    `bson:"counterpartId"`
	HiddenAt      time.Time `bson:"hiddenAt"`
	ClearedAt     time.Time `bson:"clearedAt"`
}

type profileDocument struct {
	ID          string    `bson:"_id"`
	DisplayName string    `bson:"displayName"`
	AvatarURL   string    `bson:"avatarUrl"`
	Role        string    `bson:"role"`
	Active      bool      `bson:"active"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func pairFilter(owner, counterpart uuid.UUID) bson.M {
	return bson.M{"ownerId": owner.String(), "counterpartId": counterpart.String()}
}

// upsertPair runs an upsert on a collection with a unique (ownerId,
// counterpartId) index. Two concurrent first-time upserts can race on the
// insert; the loser retries once and then updates the winner's document.
func upsertPair(ctx context.Context, coll *mongo.Collection, filter bson.M, update bson.M, out interface{}) error {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	if mongo.IsDuplicateKeyError(err) {
		err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	}
	return err
}

func (m *MongoDB) UpsertReadState(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.ReadState, error) {
	var doc readStateDocument
	update := bson.M{"$max": bson.M{"lastReadAt": at}}
	if err := upsertPair(ctx, m.ReadStates, pairFilter(owner, counterpart), update, &doc); err != nil {
		return nil, utils.NewStoreUnavailableError("upsert read state", err)
	}
	return &models.ReadState{OwnerID: owner, CounterpartID: counterpart, LastReadAt: doc.LastReadAt.UTC()}, nil
}

func (m *MongoDB) GetReadState(ctx context.Context, owner, counterpart uuid.UUID) (*models.ReadState, error) {
	var doc readStateDocument
	if err := m.ReadStates.FindOne(ctx, pairFilter(owner, counterpart)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewAppError(utils.ErrNotFound, "read state not found", err)
		}
		return nil, utils.NewStoreUnavailableError("get read state", err)
	}
	return &models.ReadState{OwnerID: owner, CounterpartID: counterpart, LastReadAt: doc.LastReadAt.UTC()}, nil
}

func (m *MongoDB) ListReadStates(ctx context.Context, owner uuid.UUID) ([]*models.ReadState, error) {
	cursor, err := m.ReadStates.Find(ctx, bson.M{"ownerId": owner.String()})
	if err != nil {
		return nil, utils.NewStoreUnavailableError("list read states", err)
	}
	var docs []readStateDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewStoreUnavailableError("decode read states", err)
	}

	states := make([]*models.ReadState, 0, len(docs))
	for _, doc := range docs {
		counterpart, err := uuid.Parse(doc.CounterpartID)
		if err != nil {
			slog.Warn("Skipping read state with malformed counterpart id", "owner", owner, "counterpart", doc.CounterpartID)
			continue
		}
		states = append(states, &models.ReadState{OwnerID: owner, CounterpartID: counterpart, LastReadAt: doc.LastReadAt.UTC()})
	}
	return states, nil
}

func (m *MongoDB) UpsertHiddenThread(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.HiddenThread, error) {
	var doc hiddenThreadDocument
	update := bson.M{"$max": bson.M{"hiddenAt": at, "clearedAt": at}}
	if err := upsertPair(ctx, m.HiddenThreads, pairFilter(owner, counterpart), update, &doc); err != nil {
		return nil, utils.NewStoreUnavailableError("upsert hidden thread", err)
	}
	return hiddenFromDocument(owner, counterpart, doc), nil
}

func (m *MongoDB) GetHiddenThread(ctx context.Context, owner, counterpart uuid.UUID) (*models.HiddenThread, error) {
	var doc hiddenThreadDocument
	if err := m.HiddenThreads.FindOne(ctx, pairFilter(owner, counterpart)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewAppError(utils.ErrNotFound, "hidden thread not found", err)
		}
		return nil, utils.NewStoreUnavailableError("get hidden thread", err)
	}
	return hiddenFromDocument(owner, counterpart, doc), nil
}

func (m *MongoDB) ListHiddenThreads(ctx context.Context, owner uuid.UUID) ([]*models.HiddenThread, error) {
	cursor, err := m.HiddenThreads.Find(ctx, bson.M{"ownerId": owner.String()})
	if err != nil {
		return nil, utils.NewStoreUnavailableError("list hidden threads", err)
	}
	var docs []hiddenThreadDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewStoreUnavailableError("decode hidden threads", err)
	}

	hidden := make([]*models.HiddenThread, 0, len(docs))
	for _, doc := range docs {
		counterpart, err := uuid.Parse(doc.CounterpartID)
		if err != nil {
			continue
		}
		hidden = append(hidden, hiddenFromDocument(owner, counterpart, doc))
	}
	return hidden, nil
}

func hiddenFromDocument(owner, counterpart uuid.UUID, doc hiddenThreadDocument) *models.HiddenThread {
	return &models.HiddenThread{
		OwnerID:       owner,
		CounterpartID: counterpart,
		HiddenAt:      doc.HiddenAt.UTC(),
		ClearedAt:     doc.ClearedAt.UTC(),
	}
}

func (m *MongoDB) EnsureParticipantPair(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (bool, error) {
	created := false
	opts := options.Update().SetUpsert(true)
	for _, pair := range [][2]uuid.UUID{{owner, counterpart}, {counterpart, owner}} {
		update := bson.M{"$setOnInsert": bson.M{"createdAt": at}}
		result, err := m.Participants.UpdateOne(ctx, pairFilter(pair[0], pair[1]), update, opts)
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent bootstrap inserted the same row first.
			continue
		}
		if err != nil {
			return false, utils.NewStoreUnavailableError("ensure participants", err)
		}
		if result.UpsertedCount > 0 {
			created = true
		}
	}
	return created, nil
}

func (m *MongoDB) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var doc profileDocument
	if err := m.Profiles.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewAppError(utils.ErrNotFound, "profile not found", err)
		}
		return nil, utils.NewStoreUnavailableError("get profile", err)
	}
	return &models.Profile{
		ID:          id,
		DisplayName: doc.DisplayName,
		AvatarURL:   doc.AvatarURL,
		Role:        models.ProfileRole(doc.Role),
		Active:      doc.Active,
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}
