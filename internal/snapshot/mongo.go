package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/John-Robertt/petwatch/internal/domain"
)

const (
	mongoCollection = "snapshots"
	mongoDocID      = "snapshot"
)

// MongoStore 把快照存为 snapshots 集合里的单个文档（_id 固定），Save 以 upsert 整体替换。
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	uri    string
}

type mongoDoc struct {
	ID            string        `bson:"_id"`
	Records       []mongoRecord `bson:"records"`
	LastCheckedAt *time.Time    `bson:"lastCheckedAt,omitempty"`
}

type mongoRecord struct {
	Identity      string   `bson:"identity"`
	Title         string   `bson:"title"`
	Author        string   `bson:"author"`
	Price         string   `bson:"price"`
	OriginalPrice string   `bson:"originalPrice"`
	Discount      string   `bson:"discount"`
	URL           string   `bson:"url"`
	Image         string   `bson:"image"`
	AnimalTypes   []string `bson:"animalTypes"`
	Topics        []string `bson:"topics"`
}

// OpenMongo 连接并 ping；uri 为空视为配置错误。
func OpenMongo(ctx context.Context, uri, dbname string) (*MongoStore, error) {
	if uri == "" {
		return nil, &Error{Code: CodeIO, Op: "open", Err: errors.New("snapshot.mongo_uri 为空")}
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &Error{Code: CodeIO, Op: "open", Path: dbname, Err: err}
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, &Error{Code: CodeIO, Op: "open", Path: dbname, Err: fmt.Errorf("ping 失败：%w", err)}
	}
	return &MongoStore{
		client: cli,
		coll:   cli.Database(dbname).Collection(mongoCollection),
		uri:    dbname + "." + mongoCollection,
	}, nil
}

func (s *MongoStore) Load(ctx context.Context) (domain.Snapshot, error) {
	raw, err := s.coll.FindOne(ctx, bson.M{"_id": mongoDocID}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return domain.Snapshot{}, &Error{Code: CodeIO, Op: "load", Path: s.uri, Err: err}
	}

	var doc mongoDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.uri, Err: err}
	}

	snap := fromMongoDoc(doc)
	if err := validateRecords(snap.Records); err != nil {
		return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.uri, Err: err}
	}
	return snap, nil
}

func (s *MongoStore) Save(ctx context.Context, records []domain.Record, at time.Time) error {
	doc := toMongoDoc(records, at)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": mongoDocID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return &Error{Code: CodeIO, Op: "save", Path: s.uri, Err: err}
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toMongoDoc(records []domain.Record, at time.Time) mongoDoc {
	at = at.UTC()
	doc := mongoDoc{ID: mongoDocID, Records: make([]mongoRecord, 0, len(records)), LastCheckedAt: &at}
	for _, r := range records {
		doc.Records = append(doc.Records, mongoRecord{
			Identity:      r.Identity,
			Title:         r.Title,
			Author:        r.Author,
			Price:         r.PriceText,
			OriginalPrice: r.OriginalPriceText,
			Discount:      r.DiscountText,
			URL:           r.LinkURL,
			Image:         r.ImageURL,
			AnimalTypes:   nonNil(r.AnimalTypes),
			Topics:        nonNil(r.Topics),
		})
	}
	return doc
}

func fromMongoDoc(doc mongoDoc) domain.Snapshot {
	snap := domain.Snapshot{LastCheckedAt: doc.LastCheckedAt}
	for _, m := range doc.Records {
		snap.Records = append(snap.Records, domain.Record{
			Identity:          m.Identity,
			Title:             m.Title,
			Author:            m.Author,
			PriceText:         m.Price,
			OriginalPriceText: m.OriginalPrice,
			DiscountText:      m.Discount,
			LinkURL:           m.URL,
			ImageURL:          m.Image,
			AnimalTypes:       m.AnimalTypes,
			Topics:            m.Topics,
		})
	}
	return snap
}
