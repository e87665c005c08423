package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Efasquel/tracker/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection     = "users"
	habitsCollection    = "habits"
	habitLogsCollection = "habitLogs"
)

type followDoc struct {
	HabitID  string `bson:"habitId"`
	Name     string `bson:"name"`
	IsActive bool   `bson:"isActive"`
}

type userDoc struct {
	ID           string      `bson:"_id"`
	Email        string      `bson:"email"`
	PasswordHash string      `bson:"passwordHash"`
	Name         string      `bson:"name"`
	Role         string      `bson:"role"`
	Habits       []followDoc `bson:"habits"`
	CreatedAt    time.Time   `bson:"createdAt"`
	UpdatedAt    time.Time   `bson:"updatedAt"`
}

type habitDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Description  string    `bson:"description"`
	DefaultScore int       `bson:"defaultScore"`
	IsMandatory  bool      `bson:"isMandatory"`
	CreatedBy    string    `bson:"createdBy"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type logEntryDoc struct {
	TargetCompletionAt time.Time `bson:"targetCompletionAt"`
	IsCompleted        bool      `bson:"isCompleted"`
}

type habitLogDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"userId"`
	HabitID   string             `bson:"habitId"`
	Logs      []logEntryDoc      `bson:"logs"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d *userDoc) toModel() *internal.User {
	u := &internal.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		Role:         internal.Role(d.Role),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, f := range d.Habits {
		u.Habits = append(u.Habits, internal.FollowedHabit{HabitID: f.HabitID, IsActive: f.IsActive})
	}
	return u
}

func habitToDoc(h *internal.Habit) habitDoc {
	return habitDoc{
		ID:           h.ID,
		Name:         h.Name,
		Description:  h.Description,
		DefaultScore: h.DefaultScore,
		IsMandatory:  h.IsMandatory,
		CreatedBy:    h.CreatedBy,
		CreatedAt:    h.CreatedAt,
		UpdatedAt:    h.UpdatedAt,
	}
}

func (d *habitDoc) toModel() *internal.Habit {
	return &internal.Habit{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		DefaultScore: d.DefaultScore,
		IsMandatory:  d.IsMandatory,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (d *habitLogDoc) toModel() *internal.HabitLog {
	l := &internal.HabitLog{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		HabitID:   d.HabitID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, e := range d.Logs {
		l.Logs = append(l.Logs, internal.LogEntry{
			TargetCompletionAt: internal.TruncateToDate(e.TargetCompletionAt),
			IsCompleted:        e.IsCompleted,
		})
	}
	return l
}

type MongoStorage struct {
	client    *mongo.Client
	users     *mongo.Collection
	habits    *mongo.Collection
	habitLogs *mongo.Collection
	logger    internal.Logger
	now       func() time.Time
}

// NewMongoStorage connects to uri, verifies the connection and ensures the
// unique indexes the repositories rely on.
func NewMongoStorage(ctx context.Context, uri, database string, logger internal.Logger) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		logger.Errorf("failed to connect to mongo: %v", err)
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		logger.Errorf("failed to ping mongo: %v", err)
		return nil, err
	}

	db := client.Database(database)
	m := &MongoStorage{
		client:    client,
		users:     db.Collection(usersCollection),
		habits:    db.Collection(habitsCollection),
		habitLogs: db.Collection(habitLogsCollection),
		logger:    logger,
		now:       time.Now,
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		logger.Errorf("failed to create mongo indexes: %v", err)
		return nil, err
	}
	return m, nil
}

func (m *MongoStorage) ensureIndexes(ctx context.Context) error {
	if _, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := m.habitLogs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "habitId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (m *MongoStorage) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func mapMongoErr(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return internal.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return internal.ErrConflict
	default:
		return err
	}
}

// --- UserRepository ---
func (m *MongoStorage) CreateUser(ctx context.Context, user *internal.User) error {
	doc := userDoc{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Name:         user.Name,
		Role:         string(user.Role),
		Habits:       []followDoc{},
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return internal.ErrConflict
		}
		m.logger.Errorf("failed to insert user: %v", err)
		return err
	}
	return nil
}

func (m *MongoStorage) findUser(ctx context.Context, filter bson.D) (*internal.User, error) {
	var doc userDoc
	if err := m.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			m.logger.Errorf("failed to query user: %v", err)
		}
		return nil, mapMongoErr(err)
	}
	return doc.toModel(), nil
}

func (m *MongoStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	return m.findUser(ctx, bson.D{{Key: "_id", Value: id}})
}

func (m *MongoStorage) GetUserByEmail(ctx context.Context, email string) (*internal.User, error) {
	return m.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (m *MongoStorage) findAndUpdateUser(ctx context.Context, filter, update bson.D) (*internal.User, error) {
	var doc userDoc
	err := m.users.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) && !mongo.IsDuplicateKeyError(err) {
			m.logger.Errorf("failed to update user: %v", err)
		}
		return nil, mapMongoErr(err)
	}
	return doc.toModel(), nil
}

func (m *MongoStorage) UpdateUser(ctx context.Context, id string, patch internal.UserPatch) (*internal.User, error) {
	set := bson.D{{Key: "updatedAt", Value: m.now()}}
	if patch.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *patch.Email})
	}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.Role != nil {
		set = append(set, bson.E{Key: "role", Value: string(*patch.Role)})
	}
	return m.findAndUpdateUser(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
}

func (m *MongoStorage) DeleteUser(ctx context.Context, id string) error {
	res, err := m.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		m.logger.Errorf("failed to delete user: %v", err)
		return err
	}
	if res.DeletedCount == 0 {
		return internal.ErrNotFound
	}
	return nil
}

// FollowNewHabit inserts the habit, then pushes the follow entry only when no
// followed habit already carries the name. A rejected push removes the habit.
func (m *MongoStorage) FollowNewHabit(ctx context.Context, userID string, habit *internal.Habit) error {
	if _, err := m.habits.InsertOne(ctx, habitToDoc(habit)); err != nil {
		m.logger.Errorf("failed to insert habit: %v", err)
		return mapMongoErr(err)
	}

	filter := bson.D{
		{Key: "_id", Value: userID},
		{Key: "habits.name", Value: bson.D{{Key: "$ne", Value: habit.Name}}},
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "habits", Value: followDoc{HabitID: habit.ID, Name: habit.Name, IsActive: true}}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: m.now()}}},
	}
	res, err := m.users.UpdateOne(ctx, filter, update)
	if err == nil && res.MatchedCount == 1 {
		return nil
	}

	if _, delErr := m.habits.DeleteOne(ctx, bson.D{{Key: "_id", Value: habit.ID}}); delErr != nil {
		m.logger.Errorf("failed to remove orphan habit %s: %v", habit.ID, delErr)
	}
	if err != nil {
		m.logger.Errorf("failed to follow habit: %v", err)
		return err
	}

	n, err := m.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: userID}})
	if err != nil {
		m.logger.Errorf("failed to count users: %v", err)
		return err
	}
	if n == 0 {
		return internal.ErrNotFound
	}
	return internal.ErrConflict
}

func (m *MongoStorage) UnfollowHabit(ctx context.Context, userID, habitID string) error {
	res, err := m.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}, {Key: "habits.habitId", Value: habitID}},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: "habits", Value: bson.D{{Key: "habitId", Value: habitID}}}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: m.now()}}},
		})
	if err != nil {
		m.logger.Errorf("failed to unfollow habit: %v", err)
		return err
	}
	if res.MatchedCount == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (m *MongoStorage) SetHabitActive(ctx context.Context, userID, habitID string, active bool) (*internal.User, error) {
	return m.findAndUpdateUser(ctx,
		bson.D{{Key: "_id", Value: userID}, {Key: "habits.habitId", Value: habitID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "habits.$.isActive", Value: active},
			{Key: "updatedAt", Value: m.now()},
		}}})
}

// --- HabitRepository ---
func (m *MongoStorage) GetHabit(ctx context.Context, id string) (*internal.Habit, error) {
	var doc habitDoc
	if err := m.habits.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			m.logger.Errorf("failed to query habit: %v", err)
		}
		return nil, mapMongoErr(err)
	}
	return doc.toModel(), nil
}

func (m *MongoStorage) GetHabits(ctx context.Context, ids []string) ([]internal.Habit, error) {
	habits := make([]internal.Habit, 0, len(ids))
	if len(ids) == 0 {
		return habits, nil
	}
	cur, err := m.habits.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		m.logger.Errorf("failed to query habits: %v", err)
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc habitDoc
		if err := cur.Decode(&doc); err != nil {
			m.logger.Errorf("failed to decode habit: %v", err)
			return nil, err
		}
		habits = append(habits, *doc.toModel())
	}
	return habits, cur.Err()
}

func (m *MongoStorage) UpdateHabit(ctx context.Context, id string, patch internal.HabitPatch) (*internal.Habit, error) {
	set := bson.D{{Key: "updatedAt", Value: m.now()}}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.DefaultScore != nil {
		set = append(set, bson.E{Key: "defaultScore", Value: *patch.DefaultScore})
	}
	if patch.IsMandatory != nil {
		set = append(set, bson.E{Key: "isMandatory", Value: *patch.IsMandatory})
	}

	var doc habitDoc
	err := m.habits.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			m.logger.Errorf("failed to update habit: %v", err)
		}
		return nil, mapMongoErr(err)
	}

	if patch.Name != nil {
		// Followers keep a copy of the name for the uniqueness check.
		_, err := m.users.UpdateMany(ctx,
			bson.D{{Key: "habits.habitId", Value: id}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "habits.$[f].name", Value: *patch.Name}}}},
			options.Update().SetArrayFilters(options.ArrayFilters{
				Filters: []interface{}{bson.D{{Key: "f.habitId", Value: id}}},
			}))
		if err != nil {
			m.logger.Errorf("failed to sync habit name on followers: %v", err)
			return nil, err
		}
	}
	return doc.toModel(), nil
}

// --- HabitLogRepository ---
func (m *MongoStorage) GetHabitLog(ctx context.Context, userID, habitID string) (*internal.HabitLog, error) {
	var doc habitLogDoc
	err := m.habitLogs.FindOne(ctx, bson.D{{Key: "userId", Value: userID}, {Key: "habitId", Value: habitID}}).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			m.logger.Errorf("failed to query habit log: %v", err)
		}
		return nil, mapMongoErr(err)
	}
	return doc.toModel(), nil
}

// trackingPipeline replaces the entry for day in place when present and
// appends it otherwise. On upsert "$logs" and "$createdAt" are missing.
func trackingPipeline(day time.Time, completed bool, now time.Time) mongo.Pipeline {
	entry := bson.D{
		{Key: "targetCompletionAt", Value: day},
		{Key: "isCompleted", Value: completed},
	}
	existing := bson.D{{Key: "$ifNull", Value: bson.A{"$logs", bson.A{}}}}
	replaced := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: existing},
		{Key: "as", Value: "e"},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$$e.targetCompletionAt", day}}},
			entry,
			"$$e",
		}}}},
	}}}
	appended := bson.D{{Key: "$concatArrays", Value: bson.A{existing, bson.A{entry}}}}
	hasDay := bson.D{{Key: "$in", Value: bson.A{
		day,
		bson.D{{Key: "$ifNull", Value: bson.A{"$logs.targetCompletionAt", bson.A{}}}},
	}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "logs", Value: bson.D{{Key: "$cond", Value: bson.A{hasDay, replaced, appended}}}},
			{Key: "createdAt", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$createdAt", now}}}},
			{Key: "updatedAt", Value: now},
		}}},
	}
}

func (m *MongoStorage) UpsertLogEntry(ctx context.Context, userID, habitID string, entry internal.LogEntry) error {
	filter := bson.D{{Key: "userId", Value: userID}, {Key: "habitId", Value: habitID}}
	update := trackingPipeline(entry.TargetCompletionAt, entry.IsCompleted, m.now())
	opts := options.Update().SetUpsert(true)

	_, err := m.habitLogs.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race on the (userId, habitId) index; the document now exists.
		_, err = m.habitLogs.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		m.logger.Errorf("failed to upsert habit log entry: %v", err)
		return err
	}
	return nil
}

func (m *MongoStorage) DeleteUserHabitLogs(ctx context.Context, userID string) error {
	if _, err := m.habitLogs.DeleteMany(ctx, bson.D{{Key: "userId", Value: userID}}); err != nil {
		m.logger.Errorf("failed to delete habit logs: %v", err)
		return err
	}
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*MongoStorage)(nil)
