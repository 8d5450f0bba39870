package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/shortcode"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	usersCollection  = "users"
	linksCollection  = "links"
	clicksCollection = "clicks"

	// returned by standalone servers when a session tries to open a transaction
	codeIllegalOperation = 20
)

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     *string            `bson:"email"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type linkDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"userId"`
	ShortCode   string             `bson:"shortCode"`
	OriginalURL string             `bson:"originalUrl"`
	CustomAlias *string            `bson:"customAlias"`
	ExpiresAt   *time.Time         `bson:"expiresAt"`
	ClickCount  int64              `bson:"clickCount"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

type clickDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	LinkID    primitive.ObjectID `bson:"linkId"`
	Timestamp time.Time          `bson:"timestamp"`
	IPAddress *string            `bson:"ipAddress"`
	UserAgent *string            `bson:"userAgent"`
	Device    *string            `bson:"device"`
	Browser   *string            `bson:"browser"`
	OS        *string            `bson:"os"`
	Referrer  *string            `bson:"referrer"`
	Country   *string            `bson:"country"`
}

func (d *userDocument) toModel() *model.User {
	return &model.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

func (d *linkDocument) toModel() *model.Link {
	l := &model.Link{
		ID:          d.ID.Hex(),
		UserID:      d.UserID,
		ShortCode:   d.ShortCode,
		OriginalURL: d.OriginalURL,
		CustomAlias: d.CustomAlias,
		ClickCount:  d.ClickCount,
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if d.ExpiresAt != nil {
		exp := d.ExpiresAt.UTC()
		l.ExpiresAt = &exp
	}
	return l
}

func (d *clickDocument) toModel() model.Click {
	return model.Click{
		ID:        d.ID.Hex(),
		LinkID:    d.LinkID.Hex(),
		Timestamp: d.Timestamp.UTC(),
		IPAddress: d.IPAddress,
		UserAgent: d.UserAgent,
		Device:    d.Device,
		Browser:   d.Browser,
		OS:        d.OS,
		Referrer:  d.Referrer,
		Country:   d.Country,
	}
}

// MongoStore persists users, links and clicks in MongoDB. It holds one
// client for its whole life; the driver pools connections and reconnects
// after transient failures.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	links  *mongo.Collection
	clicks *mongo.Collection
	alloc  *shortcode.Allocator
	logger *zap.Logger
	now    func() time.Time
}

// NewMongoStore binds to database on client and ensures the indexes the
// store relies on for uniqueness.
func NewMongoStore(ctx context.Context, client *mongo.Client, database string, alloc *shortcode.Allocator, logger *zap.Logger) (*MongoStore, error) {
	if alloc == nil {
		alloc = shortcode.NewAllocator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		users:  db.Collection(usersCollection),
		links:  db.Collection(linksCollection),
		clicks: db.Collection(clicksCollection),
		alloc:  alloc,
		logger: logger,
		now:    time.Now,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}},
		}},
		{s.links, []mongo.IndexModel{
			{Keys: bson.D{{Key: "shortCode", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		}},
		{s.clicks, []mongo.IndexModel{
			{Keys: bson.D{{Key: "linkId", Value: 1}, {Key: "timestamp", Value: 1}}},
		}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("mongo: create indexes on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) Name() string { return "mongo" }

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// timestamps are stored with millisecond precision
func (s *MongoStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) GetUserByUsernameOrEmail(ctx context.Context, handle string) (*model.User, error) {
	u, err := s.findUser(ctx, bson.M{"username": handle})
	if !errors.Is(err, ErrUserNotFound) {
		return u, err
	}
	return s.findUser(ctx, bson.M{"email": handle})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) CreateUser(ctx context.Context, in model.NewUser) (*model.User, error) {
	doc := userDocument{
		ID:        primitive.NewObjectID(),
		Username:  in.Username,
		Email:     model.StringPtr(in.Email),
		Password:  in.PasswordHash,
		CreatedAt: s.stamp(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) CreateLink(ctx context.Context, in model.NewLink, useCustomAlias bool) (*model.Link, error) {
	alias := requestedAlias(in, useCustomAlias)

	var expires *time.Time
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC().Truncate(time.Millisecond)
		expires = &exp
	}

	var created *linkDocument
	_, err := s.alloc.Allocate(ctx, alias, func(ctx context.Context, code string) error {
		doc := &linkDocument{
			ID:          primitive.NewObjectID(),
			UserID:      in.UserID,
			ShortCode:   code,
			OriginalURL: in.OriginalURL,
			CustomAlias: model.StringPtr(alias),
			ExpiresAt:   expires,
			CreatedAt:   s.stamp(),
		}
		if _, err := s.links.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return shortcode.ErrTaken
			}
			return err
		}
		created = doc
		return nil
	})
	if err != nil {
		return nil, allocationError(err)
	}
	return created.toModel(), nil
}

func (s *MongoStore) GetLink(ctx context.Context, id string) (*model.Link, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrLinkNotFound
	}
	return s.findLink(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) GetLinkByCode(ctx context.Context, code string) (*model.Link, error) {
	return s.findLink(ctx, bson.M{"shortCode": code})
}

func (s *MongoStore) findLink(ctx context.Context, filter bson.M) (*model.Link, error) {
	var doc linkDocument
	if err := s.links.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) GetLinksForUser(ctx context.Context, userID string) ([]model.Link, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.links.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := make([]model.Link, 0)
	for cur.Next(ctx) {
		var doc linkDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toModel())
	}
	return result, cur.Err()
}

func (s *MongoStore) IncrementClickCount(ctx context.Context, linkID string) error {
	oid, err := primitive.ObjectIDFromHex(linkID)
	if err != nil {
		return ErrLinkNotFound
	}

	res, err := s.links.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$inc": bson.M{"clickCount": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// DeleteLink removes the link and its clicks inside a transaction. Standalone
// servers cannot run transactions; there the link goes first so that no
// reader can reach the clicks that are about to be removed.
func (s *MongoStore) DeleteLink(ctx context.Context, id, ownerID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return s.deleteLinkWithoutTransaction(ctx, oid, ownerID)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.deleteLinkCascade(sc, oid, ownerID)
	})
	if err != nil {
		if transactionsUnsupported(err) {
			s.logger.Debug("transactions unavailable, deleting link without one", zap.String("link_id", id))
			return s.deleteLinkWithoutTransaction(ctx, oid, ownerID)
		}
		return false, err
	}
	deleted, _ := res.(bool)
	return deleted, nil
}

func (s *MongoStore) deleteLinkCascade(ctx context.Context, oid primitive.ObjectID, ownerID string) (bool, error) {
	res, err := s.links.DeleteOne(ctx, bson.M{"_id": oid, "userId": ownerID})
	if err != nil {
		return false, err
	}
	if res.DeletedCount == 0 {
		return false, nil
	}

	if _, err := s.clicks.DeleteMany(ctx, bson.M{"linkId": oid}); err != nil {
		return true, fmt.Errorf("delete clicks of link %s: %w", oid.Hex(), err)
	}
	return true, nil
}

// deleteLinkWithoutTransaction reports a removed link as deleted even when its
// clicks could not be removed afterwards; those are left orphaned and logged.
func (s *MongoStore) deleteLinkWithoutTransaction(ctx context.Context, oid primitive.ObjectID, ownerID string) (bool, error) {
	deleted, err := s.deleteLinkCascade(ctx, oid, ownerID)
	return s.settleDelete(oid, deleted, err)
}

func (s *MongoStore) settleDelete(oid primitive.ObjectID, deleted bool, err error) (bool, error) {
	if deleted && err != nil {
		s.logger.Warn("link deleted but its clicks remain", zap.String("link_id", oid.Hex()), zap.Error(err))
		return true, nil
	}
	return deleted, err
}

func transactionsUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeIllegalOperation {
		return true
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed")
}

func (s *MongoStore) CreateClick(ctx context.Context, in model.NewClick) (*model.Click, error) {
	linkOID, err := primitive.ObjectIDFromHex(in.LinkID)
	if err != nil {
		return nil, ErrLinkNotFound
	}

	n, err := s.links.CountDocuments(ctx, bson.M{"_id": linkOID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrLinkNotFound
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	rec := newClickRecord("", in)

	doc := clickDocument{
		ID:        primitive.NewObjectID(),
		LinkID:    linkOID,
		Timestamp: ts.UTC().Truncate(time.Millisecond),
		IPAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
		Device:    rec.Device,
		Browser:   rec.Browser,
		OS:        rec.OS,
		Referrer:  rec.Referrer,
		Country:   rec.Country,
	}
	if _, err := s.clicks.InsertOne(ctx, doc); err != nil {
		return nil, err
	}

	c := doc.toModel()
	return &c, nil
}

func (s *MongoStore) GetClicksForLink(ctx context.Context, linkID string) ([]model.Click, error) {
	oid, err := primitive.ObjectIDFromHex(linkID)
	if err != nil {
		return []model.Click{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.clicks.Find(ctx, bson.M{"linkId": oid}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := make([]model.Click, 0)
	for cur.Next(ctx) {
		var doc clickDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toModel())
	}
	return result, cur.Err()
}
