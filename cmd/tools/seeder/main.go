package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tours/internal/catalog"
	"github.com/noah-isme/backend-tours/internal/db"
	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
	"github.com/noah-isme/backend-tours/internal/obs"
)

type seedTour struct {
	Tour     catalog.Tour
	IsActive bool
}

func tours() []seedTour {
	d := decimal.RequireFromString
	return []seedTour{
		{IsActive: true, Tour: catalog.Tour{
			ID:        "tour-sunset-cruise",
			Title:     "Sunset Harbour Cruise",
			ListPrice: d("100.00"),
			Options: []catalog.Option{
				{ID: "standard", Title: "Standard deck", Price: d("100.00")},
				{ID: "vip", Title: "VIP lounge", Price: d("145.00")},
			},
			AddOns: []catalog.AddOn{
				{ID: "dinner", Title: "Three-course dinner", Price: d("35.00"), PerGuest: true},
				{ID: "photos", Title: "Photo package", Price: d("20.00")},
			},
		}},
		{IsActive: true, Tour: catalog.Tour{
			ID:            "tour-old-town-walk",
			Title:         "Old Town Walking Tour",
			ListPrice:     d("45.00"),
			DiscountPrice: d("39.00"),
			AddOns: []catalog.AddOn{
				{ID: "tasting", Title: "Street food tasting", Price: d("15.00"), PerGuest: true},
			},
		}},
		{IsActive: true, Tour: catalog.Tour{
			ID:        "tour-volcano-hike",
			Title:     "Volcano Sunrise Hike",
			ListPrice: d("89.50"),
			Options: []catalog.Option{
				{ID: "shared", Title: "Shared group", Price: d("89.50")},
				{ID: "private", Title: "Private guide", Price: d("210.00")},
			},
			AddOns: []catalog.AddOn{
				{ID: "pickup", Title: "Hotel pickup", Price: d("12.00")},
			},
		}},
		{IsActive: false, Tour: catalog.Tour{
			ID:        "tour-retired-safari",
			Title:     "Desert Safari (retired)",
			ListPrice: d("120.00"),
		}},
	}
}

func discountCodes(now time.Time) []dbgen.UpsertDiscountCodeParams {
	d := decimal.RequireFromString
	return []dbgen.UpsertDiscountCodeParams{
		{Code: "SAVE10", Kind: dbgen.DiscountKindPercentage, Value: db.Numeric(d("10")), IsActive: true},
		{Code: "FLAT20", Kind: dbgen.DiscountKindFixed, Value: db.Numeric(d("20")), IsActive: true, UsageLimit: pgtype.Int4{Int32: 100, Valid: true}},
		{Code: "LAUNCH25", Kind: dbgen.DiscountKindPercentage, Value: db.Numeric(d("25")), IsActive: true, UsageLimit: pgtype.Int4{Int32: 1, Valid: true}},
		{Code: "EXPIRED", Kind: dbgen.DiscountKindPercentage, Value: db.Numeric(d("50")), IsActive: true, ExpiresAt: pgtype.Timestamptz{Time: now.Add(-24 * time.Hour), Valid: true}},
		{Code: "PAUSED", Kind: dbgen.DiscountKindFixed, Value: db.Numeric(d("5")), IsActive: false},
	}
}

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	q := dbgen.New(pool)

	seeded := seedTours(ctx, q, logger)
	seedDiscounts(ctx, q, logger)
	invalidateCache(ctx, seeded, logger)

	logger.Info().Int("tours", len(seeded)).Msg("seeding completed")
}

func seedTours(ctx context.Context, q *dbgen.Queries, logger zerolog.Logger) []string {
	var ids []string
	for _, st := range tours() {
		options, err := json.Marshal(st.Tour.Options)
		if err != nil {
			logger.Error().Err(err).Str("tour", st.Tour.ID).Msg("encode options")
			continue
		}
		addOns, err := json.Marshal(st.Tour.AddOns)
		if err != nil {
			logger.Error().Err(err).Str("tour", st.Tour.ID).Msg("encode add-ons")
			continue
		}
		params := dbgen.UpsertTourParams{
			ID:        st.Tour.ID,
			Title:     st.Tour.Title,
			ListPrice: db.Numeric(st.Tour.ListPrice),
			Options:   options,
			AddOns:    addOns,
			IsActive:  st.IsActive,
		}
		if st.Tour.DiscountPrice.IsPositive() {
			params.DiscountPrice = db.Numeric(st.Tour.DiscountPrice)
		}
		if _, err := q.UpsertTour(ctx, params); err != nil {
			logger.Error().Err(err).Str("tour", st.Tour.ID).Msg("upsert tour")
			continue
		}
		ids = append(ids, st.Tour.ID)
	}
	return ids
}

func seedDiscounts(ctx context.Context, q *dbgen.Queries, logger zerolog.Logger) {
	for _, params := range discountCodes(time.Now()) {
		if _, err := q.UpsertDiscountCode(ctx, params); err != nil {
			logger.Error().Err(err).Str("code", params.Code).Msg("upsert discount code")
		}
	}
}

// invalidateCache drops stale price book entries so API replicas pick up
// the new prices immediately.
func invalidateCache(ctx context.Context, ids []string, logger zerolog.Logger) {
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if redisURL == "" || len(ids) == 0 {
		return
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("parse redis url; cache not invalidated")
		return
	}
	client := redis.NewClient(opts)
	defer client.Close()
	if err := catalog.NewCache(client, 0).Invalidate(ctx, ids...); err != nil {
		logger.Warn().Err(err).Msg("invalidate catalog cache")
	}
}
