package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/marketminder/internal/domain/models"
)

// Repository defines the interface for report storage.
type Repository interface {
	SaveReport(ctx context.Context, report models.PeriodReport) error
	LatestReports(ctx context.Context, kind string, limit int64) ([]models.PeriodReport, error)
}

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client   *mongo.Client
	dbName   string
	collName string
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client:   client,
		dbName:   dbName,
		collName: "reports",
	}, nil
}

// SaveReport archives a generated report.
func (r *MongoDBRepository) SaveReport(ctx context.Context, report models.PeriodReport) error {
	doc, err := toDocument(report)
	if err != nil {
		return err
	}
	if _, err := r.collection().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// LatestReports returns the newest archived reports of kind, newest first.
func (r *MongoDBRepository) LatestReports(ctx context.Context, kind string, limit int64) ([]models.PeriodReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.collection().Find(ctx, bson.M{"kind": kind}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer cur.Close(ctx)

	var docs []reportDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}

	out := make([]models.PeriodReport, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) collection() *mongo.Collection {
	return r.client.Database(r.dbName).Collection(r.collName)
}

// reportDocument is the stored shape; money is kept as Decimal128 so it stays exact
// and queryable from the shell.
type reportDocument struct {
	Kind          string               `bson:"kind"`
	ShopName      string               `bson:"shop_name"`
	From          time.Time            `bson:"from"`
	To            time.Time            `bson:"to"`
	Transactions  int                  `bson:"transactions"`
	TotalIncome   primitive.Decimal128 `bson:"total_income"`
	TotalExpenses primitive.Decimal128 `bson:"total_expenses"`
	Balance       primitive.Decimal128 `bson:"balance"`
	CostOfGoods   primitive.Decimal128 `bson:"cost_of_goods"`
	GrossProfit   primitive.Decimal128 `bson:"gross_profit"`
	LowStock      []stockDocument      `bson:"low_stock,omitempty"`
	Message       string               `bson:"message"`
	CreatedAt     time.Time            `bson:"created_at"`
}

type stockDocument struct {
	Item     string               `bson:"item"`
	Quantity primitive.Decimal128 `bson:"quantity"`
}

func toDocument(report models.PeriodReport) (reportDocument, error) {
	var firstErr error
	dec := func(d decimal.Decimal) primitive.Decimal128 {
		v, err := primitive.ParseDecimal128(d.String())
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("convert %s to decimal128: %w", d.String(), err)
		}
		return v
	}

	s := report.Summary
	doc := reportDocument{
		Kind:          report.Kind,
		ShopName:      report.ShopName,
		From:          s.From,
		To:            s.To,
		Transactions:  s.Transactions,
		TotalIncome:   dec(s.TotalIncome),
		TotalExpenses: dec(s.TotalExpenses),
		Balance:       dec(s.Balance),
		CostOfGoods:   dec(s.CostOfGoods),
		GrossProfit:   dec(s.GrossProfit),
		Message:       report.Message,
		CreatedAt:     report.CreatedAt,
	}
	for _, level := range s.LowStock {
		doc.LowStock = append(doc.LowStock, stockDocument{Item: level.Item, Quantity: dec(level.Quantity)})
	}
	return doc, firstErr
}

func (d reportDocument) toModel() models.PeriodReport {
	dec := func(v primitive.Decimal128) decimal.Decimal {
		out, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return out
	}

	report := models.PeriodReport{
		Kind:     d.Kind,
		ShopName: d.ShopName,
		Summary: models.Summary{
			From:          d.From,
			To:            d.To,
			Transactions:  d.Transactions,
			TotalIncome:   dec(d.TotalIncome),
			TotalExpenses: dec(d.TotalExpenses),
			Balance:       dec(d.Balance),
			CostOfGoods:   dec(d.CostOfGoods),
			GrossProfit:   dec(d.GrossProfit),
		},
		Message:   d.Message,
		CreatedAt: d.CreatedAt,
	}
	for _, s := range d.LowStock {
		report.Summary.LowStock = append(report.Summary.LowStock, models.StockLevel{Item: s.Item, Quantity: dec(s.Quantity)})
	}
	return report
}
