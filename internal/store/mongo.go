package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/weather"
)

const (
	colStations = "stations"
	colReadings = "readings"
	colWebcams  = "webcams"
	colImages   = "images"
	colOutputs  = "outputs"
	colAPIKeys  = "apikeys"
)

// MongoStore implements weather.Store on MongoDB. Expiry is enforced by TTL
// indexes on expireAt; nothing here deletes rows.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database), logger: logger}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo index ensure failed: %w", err)
	}
	return s, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colReadings: {
			{
				Keys:    bson.D{{Key: "stationId", Value: 1}, {Key: "time", Value: -1}},
				Options: options.Index().SetUnique(true).SetName("station_time_unique"),
			},
			{
				Keys:    bson.D{{Key: "expireAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("expire_ttl"),
			},
		},
		colImages: {
			{
				Keys:    bson.D{{Key: "webcamId", Value: 1}, {Key: "time", Value: -1}},
				Options: options.Index().SetName("webcam_time"),
			},
			{
				Keys:    bson.D{{Key: "expireAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("expire_ttl"),
			},
		},
		colOutputs: {
			{
				Keys:    bson.D{{Key: "time", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("time_unique"),
			},
		},
		colStations: {
			{
				Keys:    bson.D{{Key: "type", Value: 1}},
				Options: options.Index().SetName("type"),
			},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", col, err)
		}
		s.logger.Debug("mongo indexes ensured", zap.String("collection", col), zap.Int("count", len(models)))
	}
	return nil
}

// UpsertStation writes the catalogue fields of a station, leaving the snapshot alone.
func (s *MongoStore) UpsertStation(ctx context.Context, st weather.Station) error {
	_, err := s.db.Collection(colStations).UpdateOne(ctx,
		bson.M{"_id": st.ID},
		bson.M{"$set": bson.M{
			"name":          st.Name,
			"type":          st.Type,
			"externalId":    st.ExternalID,
			"externalAux":   st.ExternalAux,
			"link":          st.Link,
			"coordinates":   st.Coordinates,
			"elevation":     st.Elevation,
			"validBearings": st.ValidBearings,
			"overrides":     st.Overrides,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// UpsertWebcam writes the catalogue fields of a webcam, leaving the snapshot alone.
func (s *MongoStore) UpsertWebcam(ctx context.Context, cam weather.Webcam) error {
	_, err := s.db.Collection(colWebcams).UpdateOne(ctx,
		bson.M{"_id": cam.ID},
		bson.M{"$set": bson.M{
			"name":        cam.Name,
			"type":        cam.Type,
			"externalId":  cam.ExternalID,
			"coordinates": cam.Coordinates,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// UpsertAPIKey stores an API key.
func (s *MongoStore) UpsertAPIKey(ctx context.Context, key weather.APIKey) error {
	_, err := s.db.Collection(colAPIKeys).ReplaceOne(ctx,
		bson.M{"_id": key.Key}, key, options.Replace().SetUpsert(true))
	return err
}

// ListStations returns the stations whose type is in types (nil = all).
func (s *MongoStore) ListStations(ctx context.Context, types []weather.ProviderType) ([]weather.Station, error) {
	filter := bson.M{}
	if types != nil {
		filter["type"] = bson.M{"$in": types}
	}
	cur, err := s.db.Collection(colStations).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []weather.Station
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendReading inserts the reading when its bucket is newer than the station's
// newest stored reading, then updates the station snapshot. A late write for an
// older bucket only touches the snapshot, as in MemoryStore.
func (s *MongoStore) AppendReading(ctx context.Context, stationID string, m weather.Measurement, at time.Time) error {
	var newest struct {
		Time time.Time `bson:"time"`
	}
	err := s.db.Collection(colReadings).FindOne(ctx,
		bson.M{"stationId": stationID},
		options.FindOne().
			SetSort(bson.D{{Key: "time", Value: -1}}).
			SetProjection(bson.M{"time": 1}),
	).Decode(&newest)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("newest reading: %w", err)
	}

	if extendsHistory(newest.Time, at) {
		_, err := s.db.Collection(colReadings).InsertOne(ctx, weather.Reading{
			ID:          uuid.NewString(),
			StationID:   stationID,
			Time:        at,
			ExpireAt:    at.Add(weather.ReadingTTL),
			Measurement: m,
		})
		// station_time_unique rejects a concurrent insert for the same bucket.
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert reading: %w", err)
		}
	}

	set := bson.M{
		"lastUpdate":         at,
		"currentAverage":     m.WindAverage,
		"currentGust":        m.WindGust,
		"currentBearing":     m.WindBearing,
		"currentTemperature": m.Temperature,
	}
	if m.HasWind() {
		set["isOffline"] = false
	}
	if m.Complete() {
		set["isError"] = false
	}
	return s.updateByID(ctx, colStations, stationID, bson.M{"$set": set})
}

// RecentReadings returns up to limit readings, newest first.
func (s *MongoStore) RecentReadings(ctx context.Context, stationID string, limit int) ([]weather.Reading, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "time", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.db.Collection(colReadings).Find(ctx, bson.M{"stationId": stationID}, opts)
	if err != nil {
		return nil, err
	}
	var out []weather.Reading
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkOffline sets isOffline.
func (s *MongoStore) MarkOffline(ctx context.Context, stationID string) error {
	return s.updateByID(ctx, colStations, stationID, bson.M{"$set": bson.M{"isOffline": true}})
}

// MarkError sets isError.
func (s *MongoStore) MarkError(ctx context.Context, stationID string) error {
	return s.updateByID(ctx, colStations, stationID, bson.M{"$set": bson.M{"isError": true}})
}

// SaveSession persists adapter session state on the station document.
func (s *MongoStore) SaveSession(ctx context.Context, stationID string, session weather.SessionState) error {
	return s.updateByID(ctx, colStations, stationID, bson.M{"$set": bson.M{"session": session}})
}

// ListWebcams returns every webcam.
func (s *MongoStore) ListWebcams(ctx context.Context) ([]weather.Webcam, error) {
	cur, err := s.db.Collection(colWebcams).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []weather.Webcam
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestImage returns the newest image for a webcam.
func (s *MongoStore) LatestImage(ctx context.Context, webcamID string) (weather.Image, error) {
	var img weather.Image
	err := s.db.Collection(colImages).FindOne(ctx,
		bson.M{"webcamId": webcamID},
		options.FindOne().SetSort(bson.D{{Key: "time", Value: -1}}),
	).Decode(&img)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return weather.Image{}, ErrNotFound
	}
	return img, err
}

// AppendImage inserts an image row.
func (s *MongoStore) AppendImage(ctx context.Context, img weather.Image) error {
	_, err := s.db.Collection(colImages).InsertOne(ctx, img)
	return err
}

// UpdateWebcamSnapshot sets the webcam's current image pointer.
func (s *MongoStore) UpdateWebcamSnapshot(ctx context.Context, webcamID string, lastUpdate, currentTime time.Time, url string) error {
	return s.updateByID(ctx, colWebcams, webcamID, bson.M{"$set": bson.M{
		"lastUpdate":  lastUpdate,
		"currentTime": currentTime,
		"currentUrl":  url,
	}})
}

// AppendOutput adds a catalogue entry, replacing any entry for the same time.
func (s *MongoStore) AppendOutput(ctx context.Context, out weather.Output) error {
	_, err := s.db.Collection(colOutputs).ReplaceOne(ctx,
		bson.M{"time": out.Time},
		out,
		options.Replace().SetUpsert(true),
	)
	return err
}

// ListOutputs returns catalogue entries within [from, to]; zero bounds are open.
func (s *MongoStore) ListOutputs(ctx context.Context, from, to time.Time) ([]weather.Output, error) {
	rng := bson.M{}
	if !from.IsZero() {
		rng["$gte"] = from
	}
	if !to.IsZero() {
		rng["$lte"] = to
	}
	filter := bson.M{}
	if len(rng) > 0 {
		filter["time"] = rng
	}
	cur, err := s.db.Collection(colOutputs).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "time", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []weather.Output{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindAPIKey looks up an API key.
func (s *MongoStore) FindAPIKey(ctx context.Context, key string) (weather.APIKey, error) {
	var k weather.APIKey
	err := s.db.Collection(colAPIKeys).FindOne(ctx, bson.M{"_id": key}).Decode(&k)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return weather.APIKey{}, ErrNotFound
	}
	return k, err
}

func (s *MongoStore) updateByID(ctx context.Context, col, id string, update bson.M) error {
	res, err := s.db.Collection(col).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
