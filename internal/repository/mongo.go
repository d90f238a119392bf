package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"workflow-engine/backend/pkg/models"
)

const (
	workflowsCollection   = "workflows"
	processLogsCollection = "process_logs"
	ttablesCollection     = "ttables"
)

// MongoStore is a MongoDB implementation of Repository.
type MongoStore struct {
	client    *mongo.Client
	workflows *mongo.Collection
	logs      *mongo.Collection
	ttables   *mongo.Collection
}

// OpenMongo connects to uri and returns a store bound to database.
func OpenMongo(ctx context.Context, uri, database string, timeout time.Duration) (*MongoStore, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if timeout > 0 {
		clientOptions.SetConnectTimeout(timeout)
		clientOptions.SetServerSelectionTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return NewMongoStore(client, database), nil
}

// NewMongoStore creates a MongoStore on an already connected client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:    client,
		workflows: db.Collection(workflowsCollection),
		logs:      db.Collection(processLogsCollection),
		ttables:   db.Collection(ttablesCollection),
	}
}

// EnsureIndexes creates the unique keys and the dependency lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.workflows.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "flows_code", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to index workflows: %w", err)
	}
	if _, err := s.ttables.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "app_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to index ttables: %w", err)
	}
	if _, err := s.logs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "workflow_id", Value: 1}, {Key: "source_id", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "processing_time", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to index process logs: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) GetWorkflow(ctx context.Context, code string) (*models.WorkflowGraph, error) {
	var graph models.WorkflowGraph
	if err := s.workflows.FindOne(ctx, bson.M{"flows_code": code}).Decode(&graph); err != nil {
		return nil, mongoNotFound(err)
	}
	graph.Extra = withoutID(normalizeMap(graph.Extra))
	for i := range graph.Nodes {
		graph.Nodes[i].Data = normalizeMap(graph.Nodes[i].Data)
		graph.Nodes[i].Extra = normalizeMap(graph.Nodes[i].Extra)
	}
	for i := range graph.Edges {
		graph.Edges[i].Extra = normalizeMap(graph.Edges[i].Extra)
		graph.Edges[i].Data.Extra = normalizeMap(graph.Edges[i].Data.Extra)
	}
	return &graph, nil
}

func (s *MongoStore) UpsertWorkflow(ctx context.Context, graph *models.WorkflowGraph) error {
	doc := *graph
	doc.Extra = withoutKeys(graph.Extra, "_id", "flows_code", "name", "version", "nodes", "edges", "processing_time")
	_, err := s.workflows.ReplaceOne(ctx, bson.M{"flows_code": graph.FlowsCode}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) InsertLog(ctx context.Context, entry *models.ProcessLogEntry) error {
	if err := models.ValidateDataKeys(entry.Data); err != nil {
		return err
	}
	_, err := s.logs.InsertOne(ctx, entry)
	return err
}

// UpdateLogStatus merges data key by key with "data.<key>" paths, so keys
// that would address a nested path or an operator are refused.
func (s *MongoStore) UpdateLogStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	if err := models.ValidateDataKeys(update.Data); err != nil {
		return err
	}
	set := bson.M{
		"status":          update.Status,
		"user_id":         update.UserID,
		"finish_date":     update.FinishDate,
		"processing_time": update.FinishDate,
	}
	for k, v := range update.Data {
		set["data."+k] = v
	}
	res, err := s.logs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) LatestLogByAppID(ctx context.Context, appID string) (*models.ProcessLogEntry, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "processing_time", Value: -1}, {Key: "_id", Value: -1}})
	return s.findOneLog(ctx, bson.M{"app_id": appID}, opts)
}

func (s *MongoStore) LatestLogBySource(ctx context.Context, appID string, workflowID int, sourceID string) (*models.ProcessLogEntry, error) {
	filter := bson.M{
		"app_id":      appID,
		"workflow_id": workflowID,
		"source_id":   primitive.Regex{Pattern: "^" + regexp.QuoteMeta(sourceID) + "$", Options: "i"},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	return s.findOneLog(ctx, filter, opts)
}

func (s *MongoStore) DistinctSources(ctx context.Context, appID string) ([]string, error) {
	values, err := s.logs.Distinct(ctx, "source_id", bson.M{"app_id": appID})
	if err != nil {
		return nil, err
	}
	sources := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			sources = append(sources, str)
		}
	}
	sort.Strings(sources)
	return sources, nil
}

func (s *MongoStore) ListLogsByAppID(ctx context.Context, appID string) ([]*models.ProcessLogEntry, error) {
	cursor, err := s.logs.Find(ctx, bson.M{"app_id": appID}, options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var entries []*models.ProcessLogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		normalizeLog(e)
	}
	return entries, nil
}

func (s *MongoStore) DeleteLog(ctx context.Context, id string) error {
	res, err := s.logs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetTTable(ctx context.Context, appID string) (*models.TTable, error) {
	var t models.TTable
	if err := s.ttables.FindOne(ctx, bson.M{"app_id": appID}).Decode(&t); err != nil {
		return nil, mongoNotFound(err)
	}
	t.Fields = withoutID(normalizeMap(t.Fields))
	if t.Fields == nil {
		t.Fields = map[string]interface{}{}
	}
	return &t, nil
}

func (s *MongoStore) UpsertTTable(ctx context.Context, ttable *models.TTable) error {
	doc := *ttable
	doc.Fields = withoutKeys(ttable.Fields, "_id", "app_id", "processing_time")
	_, err := s.ttables.ReplaceOne(ctx, bson.M{"app_id": ttable.AppID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) findOneLog(ctx context.Context, filter interface{}, opts *options.FindOneOptions) (*models.ProcessLogEntry, error) {
	var entry models.ProcessLogEntry
	if err := s.logs.FindOne(ctx, filter, opts).Decode(&entry); err != nil {
		return nil, mongoNotFound(err)
	}
	normalizeLog(&entry)
	return &entry, nil
}

func normalizeLog(e *models.ProcessLogEntry) {
	e.Data = normalizeMap(e.Data)
	e.ActionDate = e.ActionDate.UTC()
	e.ProcessingTime = e.ProcessingTime.UTC()
	if e.FinishDate != nil {
		finish := e.FinishDate.UTC()
		e.FinishDate = &finish
	}
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// normalizeMap converts the driver's primitive document and array types
// into plain maps and slices.
func normalizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeBSON(v)
	}
	return out
}

func normalizeBSON(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.M:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case primitive.D:
		m := make(map[string]interface{}, len(val))
		for _, e := range val {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case primitive.A:
		return normalizeSlice(val)
	case []interface{}:
		return normalizeSlice(val)
	case primitive.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}

func normalizeSlice(items []interface{}) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = normalizeBSON(item)
	}
	return out
}

func withoutID(m map[string]interface{}) map[string]interface{} {
	return withoutKeys(m, "_id")
}

func withoutKeys(m map[string]interface{}, keys ...string) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
