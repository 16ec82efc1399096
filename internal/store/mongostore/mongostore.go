// Package mongostore 把落盘的餐车记录导入 MongoDB（默认 entree.trucks）。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/John-Robertt/rhtrucks/internal/domain"
)

const (
	connectTimeout = 5 * time.Second
	writeTimeout   = 5 * time.Second
)

// Store 以 {state, city, slug} 为键 upsert 记录：重复导入同一棵输出树不会产生重复文档。
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// Connect 连接并 ping；失败时不返回半初始化的 Store。
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo.uri 为空")
	}
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("连接 MongoDB 失败：%w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB 失败：%w", err)
	}

	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
		now:    time.Now,
	}, nil
}

// EnsureIndex 建立 {state, city, slug} 唯一索引（已存在时是 no-op）。
func (s *Store) EnsureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "state", Value: 1}, {Key: "city", Value: 1}, {Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("state_city_slug"),
	})
	if err != nil {
		return fmt.Errorf("创建索引失败：%w", err)
	}
	return nil
}

func (s *Store) UpsertTruck(ctx context.Context, key domain.TruckKey, rec domain.TruckRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := s.coll.ReplaceOne(ctx, Filter(key), NewDocument(key, rec, s.now()), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s/%s/%s 失败：%w", key.State, key.City, key.Slug, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("断开 MongoDB 失败：%w", err)
	}
	return nil
}

// Document 是集合中的文档：记录字段平铺在顶层，外加定位键与导入时间。
type Document struct {
	State string `bson:"state"`
	City  string `bson:"city"`
	Slug  string `bson:"slug"`

	domain.TruckRecord `bson:",inline"`

	ImportedAt primitive.DateTime `bson:"importedAt"`
}

func Filter(key domain.TruckKey) bson.D {
	return bson.D{
		{Key: "state", Value: key.State},
		{Key: "city", Value: key.City},
		{Key: "slug", Value: key.Slug},
	}
}

func NewDocument(key domain.TruckKey, rec domain.TruckRecord, now time.Time) Document {
	return Document{
		State:       key.State,
		City:        key.City,
		Slug:        key.Slug,
		TruckRecord: rec,
		ImportedAt:  primitive.NewDateTimeFromTime(now.UTC()),
	}
}
