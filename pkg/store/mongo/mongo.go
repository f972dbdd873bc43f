// Package mongo implements store.Store on MongoDB.
//
// Each record kind lives in its own collection. Workflow updates use the
// version field as a compare-and-swap guard; allocations of one workflow
// are stored as a single document so PutAllocations replaces them
// atomically.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

const (
	colWorkflows   = "workflows"
	colAnalyses    = "analyses"
	colScores      = "scores"
	colAllocations = "allocations"
	colProjects    = "projects"
	colWallets     = "wallets"
	colAirdrops    = "airdrops"
)

// DefaultConnectTimeout bounds Open.
const DefaultConnectTimeout = 10 * time.Second

// Store is a MongoDB-backed store.Store.
type Store struct {
	db     *mongo.Database
	client *mongo.Client
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the connection and ensures indexes.
// Close disconnects the client.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client.Database(database))
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. Close does not disconnect it.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// EnsureIndexes creates the secondary indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(colWorkflows).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "stage", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("index workflows: %w", err)
	}
	_, err = s.db.Collection(colWallets).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "address", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("index wallets: %w", err)
	}
	return nil
}

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// notFound maps a missing document to store.ErrNotFound.
func notFound(err error) error {
	if err == mongo.ErrNoDocuments {
		return store.ErrNotFound
	}
	return err
}

func byID(id string) bson.M { return bson.M{"_id": id} }

var upsert = options.Replace().SetUpsert(true)

func (s *Store) exists(ctx context.Context, workflowID string) error {
	n, err := s.col(colWorkflows).CountDocuments(ctx, byID(workflowID), options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	w.Version = 1
	if _, err := s.col(colWorkflows).InsertOne(ctx, w); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var w workflow.Workflow
	if err := s.col(colWorkflows).FindOne(ctx, byID(id)).Decode(&w); err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	next := w.Clone()
	next.Version = w.Version + 1
	res, err := s.col(colWorkflows).ReplaceOne(ctx, bson.M{"_id": w.ID, "version": w.Version}, next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if err := s.exists(ctx, w.ID); err != nil {
			return err
		}
		return store.ErrConflict
	}
	w.Version = next.Version
	return nil
}

func (s *Store) ListWorkflows(ctx context.Context, f store.Filter) ([]*workflow.Workflow, error) {
	filter := bson.M{}
	if f.Active {
		filter["stage"] = bson.M{"$nin": bson.A{string(workflow.StageCompleted), string(workflow.StageFailed)}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.col(colWorkflows).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []*workflow.Workflow
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.col(colWorkflows).DeleteOne(ctx, byID(id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return s.ClearArtifacts(ctx, id)
}

func (s *Store) ClearArtifacts(ctx context.Context, workflowID string) error {
	for _, name := range []string{colAnalyses, colScores, colAllocations} {
		if _, err := s.col(name).DeleteOne(ctx, byID(workflowID)); err != nil {
			return fmt.Errorf("delete %s of %s: %w", name, workflowID, err)
		}
	}
	return nil
}

func (s *Store) PutAnalysis(ctx context.Context, a *workflow.Analysis) error {
	if err := s.exists(ctx, a.WorkflowID); err != nil {
		return err
	}
	_, err := s.col(colAnalyses).ReplaceOne(ctx, byID(a.WorkflowID), a, upsert)
	return err
}

func (s *Store) GetAnalysis(ctx context.Context, workflowID string) (*workflow.Analysis, error) {
	var a workflow.Analysis
	if err := s.col(colAnalyses).FindOne(ctx, byID(workflowID)).Decode(&a); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *Store) PutScores(ctx context.Context, sc *workflow.Scores) error {
	if err := s.exists(ctx, sc.WorkflowID); err != nil {
		return err
	}
	_, err := s.col(colScores).ReplaceOne(ctx, byID(sc.WorkflowID), sc, upsert)
	return err
}

func (s *Store) GetScores(ctx context.Context, workflowID string) (*workflow.Scores, error) {
	var sc workflow.Scores
	if err := s.col(colScores).FindOne(ctx, byID(workflowID)).Decode(&sc); err != nil {
		return nil, notFound(err)
	}
	return &sc, nil
}

type allocationSet struct {
	WorkflowID string                `bson:"_id"`
	Items      []workflow.Allocation `bson:"items"`
}

func (s *Store) PutAllocations(ctx context.Context, workflowID string, allocs []workflow.Allocation) error {
	if err := s.exists(ctx, workflowID); err != nil {
		return err
	}
	doc := allocationSet{WorkflowID: workflowID, Items: allocs}
	_, err := s.col(colAllocations).ReplaceOne(ctx, byID(workflowID), doc, upsert)
	return err
}

func (s *Store) ListAllocations(ctx context.Context, workflowID string) ([]workflow.Allocation, error) {
	if err := s.exists(ctx, workflowID); err != nil {
		return nil, err
	}
	var doc allocationSet
	err := s.col(colAllocations).FindOne(ctx, byID(workflowID)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Items, nil
}

type projectDoc struct {
	Key              string `bson:"_id"`
	workflow.Project `bson:",inline"`
}

func (s *Store) PutProject(ctx context.Context, p workflow.Project) error {
	key := store.ProjectKey(p.Owner, p.Name)
	_, err := s.col(colProjects).ReplaceOne(ctx, byID(key), projectDoc{Key: key, Project: p}, upsert)
	return err
}

func (s *Store) GetProject(ctx context.Context, owner, name string) (*workflow.Project, error) {
	var doc projectDoc
	if err := s.col(colProjects).FindOne(ctx, byID(store.ProjectKey(owner, name))).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return &doc.Project, nil
}

func (s *Store) PutWallet(ctx context.Context, b workflow.WalletBinding) error {
	_, err := s.col(colWallets).ReplaceOne(ctx, byID(b.Identity), b, upsert)
	return err
}

func (s *Store) GetWallet(ctx context.Context, identity string) (*workflow.WalletBinding, error) {
	var b workflow.WalletBinding
	if err := s.col(colWallets).FindOne(ctx, byID(identity)).Decode(&b); err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *Store) FindWallet(ctx context.Context, address string) (*workflow.WalletBinding, error) {
	var b workflow.WalletBinding
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := s.col(colWallets).FindOne(ctx, bson.M{"address": address}, opts).Decode(&b); err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *Store) DeleteWallet(ctx context.Context, identity string) error {
	_, err := s.col(colWallets).DeleteOne(ctx, byID(identity))
	return err
}

func (s *Store) CreateAirdrop(ctx context.Context, a *workflow.Airdrop) error {
	doc := *a
	if doc.Claims == nil {
		doc.Claims = []workflow.Claim{}
	}
	if _, err := s.col(colAirdrops).InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetAirdrop(ctx context.Context, id string) (*workflow.Airdrop, error) {
	var a workflow.Airdrop
	if err := s.col(colAirdrops).FindOne(ctx, byID(id)).Decode(&a); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *Store) AddClaim(ctx context.Context, airdropID string, c workflow.Claim) (*workflow.Airdrop, error) {
	filter := bson.M{
		"_id":            airdropID,
		"status":         string(workflow.AirdropOpen),
		"claims.address": bson.M{"$ne": c.Address},
	}
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var a workflow.Airdrop
	err := s.col(colAirdrops).FindOneAndUpdate(ctx, filter, bson.M{"$push": bson.M{"claims": c}}, after).Decode(&a)
	if err == nil {
		return &a, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	cur, err := s.GetAirdrop(ctx, airdropID)
	if err != nil {
		return nil, err
	}
	if _, ok := cur.Claimed(c.Address); ok {
		return cur, nil
	}
	return nil, store.ErrClosed
}

func (s *Store) SetAirdropStatus(ctx context.Context, id string, st workflow.AirdropStatus) error {
	res, err := s.col(colAirdrops).UpdateOne(ctx, byID(id), bson.M{"$set": bson.M{"status": string(st)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Close disconnects the client if the store opened it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Drop removes the database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}
