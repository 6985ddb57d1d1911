package database

import (
	"context"
	"fmt"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DirectMessageDocument represents the MongoDB document structure for direct messages
type DirectMessageDocument struct {
	ID          string    `bson:"_id"`
	SenderID    string    `bson:"senderId"`
	RecipientID string    `bson:"recipientId"`
	Content     string    `bson:"content"`
	CreatedAt   time.Time `bson:"createdAt"`
}

type threadHeadDocument struct {
	CounterpartID  string                `bson:"_id"`
	Last           DirectMessageDocument `bson:"last"`
	LastIncomingAt *time.Time            `bson:"lastIncomingAt"`
}

func (doc DirectMessageDocument) toModel() (*models.Message, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed message id %q: %w", doc.ID, err)
	}
	senderID, err := uuid.Parse(doc.SenderID)
	if err != nil {
		return nil, fmt.Errorf("malformed sender id %q: %w", doc.SenderID, err)
	}
	recipientID, err := uuid.Parse(doc.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("malformed recipient id %q: %w", doc.RecipientID, err)
	}
	return &models.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     doc.Content,
		CreatedAt:   doc.CreatedAt.UTC(),
	}, nil
}

// InsertMessage saves a new direct message to MongoDB
func (m *MongoDB) InsertMessage(ctx context.Context, message *models.Message) error {
	if message.SenderID == message.RecipientID {
		return utils.NewSelfMessageError()
	}
	doc := DirectMessageDocument{
		ID:          message.ID.String(),
		SenderID:    message.SenderID.String(),
		RecipientID: message.RecipientID.String(),
		Content:     message.Content,
		CreatedAt:   message.CreatedAt,
	}

	if _, err := m.Messages.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewAppError(utils.ErrInvalidInput, "duplicate message id", err)
		}
		return utils.NewStoreUnavailableError("insert message", err)
	}
	return nil
}

// ListMessagesBetween retrieves the conversation between a and b, oldest first
func (m *MongoDB) ListMessagesBetween(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	aStr, bStr := a.String(), b.String()
	filter := bson.M{
		"$or": bson.A{
			bson.M{"senderId": aStr, "recipientId": bStr},
			bson.M{"senderId": bStr, "recipientId": aStr},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.Messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewStoreUnavailableError("list messages", err)
	}
	defer cursor.Close(ctx)

	messages := []*models.Message{}
	for cursor.Next(ctx) {
		var doc DirectMessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewStoreUnavailableError("decode message", err)
		}
		msg, err := doc.toModel()
		if err != nil {
			return nil, utils.NewStoreUnavailableError("decode message", err)
		}
		messages = append(messages, msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewStoreUnavailableError("iterate messages", err)
	}
	return messages, nil
}

// ThreadHeads groups the owner's messages by counterpart server side.
func (m *MongoDB) ThreadHeads(ctx context.Context, owner uuid.UUID) ([]*models.ThreadHead, error) {
	ownerStr := owner.String()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"senderId": ownerStr},
			bson.M{"recipientId": ownerStr},
		}}}},
		{{Key: "$addFields", Value: bson.M{
			"counterpartId": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$senderId", ownerStr}}, "$recipientId", "$senderId",
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":  "$counterpartId",
			"last": bson.M{"$first": "$$ROOT"},
			// $max ignores the nulls produced for outgoing messages.
			"lastIncomingAt": bson.M{"$max": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$recipientId", ownerStr}}, "$createdAt", nil,
			}}},
		}}},
	}

	cursor, err := m.Messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, utils.NewStoreUnavailableError("aggregate thread heads", err)
	}
	var docs []threadHeadDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewStoreUnavailableError("decode thread heads", err)
	}

	heads := make([]*models.ThreadHead, 0, len(docs))
	for _, doc := range docs {
		last, err := doc.Last.toModel()
		if err != nil {
			return nil, utils.NewStoreUnavailableError("decode thread head", err)
		}
		head := &models.ThreadHead{
			CounterpartID: last.CounterpartOf(owner),
			LastMessage:   last,
		}
		if doc.LastIncomingAt != nil {
			at := doc.LastIncomingAt.UTC()
			head.LastIncomingAt = &at
		}
		heads = append(heads, head)
	}
	return heads, nil
}
