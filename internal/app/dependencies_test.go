package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/cart"
	"github.com/noah-isme/backend-tours/internal/cartmeta"
	"github.com/noah-isme/backend-tours/internal/config"
)

func TestEngineUsesConfiguredRates(t *testing.T) {
	cfg := &config.Config{ServiceFeeRate: decimal.RequireFromString("0.1"), TaxRate: decimal.Zero}
	engine := Engine(cfg)

	b, err := engine.Quote([]cart.LineItem{{TourID: "t1", BasePrice: decimal.NewFromInt(100), AdultQty: 1}}, nil)
	require.NoError(t, err)
	require.Equal(t, "10", b.ServiceFee.String())
	require.Equal(t, "110", b.Total.String())

	free := Engine(&config.Config{ServiceFeeRate: decimal.Zero, TaxRate: decimal.Zero})
	b, err = free.Quote([]cart.LineItem{{TourID: "t1", BasePrice: decimal.NewFromInt(100), AdultQty: 1}}, nil)
	require.NoError(t, err)
	require.Equal(t, "100", b.Total.String())
}

func TestCodecSpillsToRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	deps := &Dependencies{Redis: client}
	codec := deps.Codec(&config.Config{MetadataCartSlots: 1, CartOverflowTTL: time.Hour})

	items := make([]cart.LineItem, 0, 20)
	for i := 0; i < 20; i++ {
		items = append(items, cart.LineItem{TourID: "tour-with-a-long-identifier", BasePrice: decimal.NewFromInt(50), AdultQty: 2, SelectedDate: "2026-12-01"})
	}
	md, err := codec.Encode(context.Background(), items)
	require.NoError(t, err)
	require.NotEmpty(t, md[cartmeta.KeyRef])

	decoded, err := codec.Decode(context.Background(), md)
	require.NoError(t, err)
	require.Len(t, decoded, 20)
}

func TestCloseRunsInReverse(t *testing.T) {
	var order []int
	deps := &Dependencies{}
	deps.closers = append(deps.closers, func() { order = append(order, 1) }, func() { order = append(order, 2) })
	deps.Close()
	deps.Close()
	require.Equal(t, []int{2, 1}, order)
}

func TestTaskRedis(t *testing.T) {
	opt, err := TaskRedis(&config.Config{RedisURL: "redis://localhost:6379/3"})
	require.NoError(t, err)
	require.NotNil(t, opt)

	_, err = TaskRedis(&config.Config{RedisURL: "http://nope"})
	require.Error(t, err)
}

func TestTaskLoggerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	l := TaskLogger{Logger: zerolog.New(&buf)}
	l.Warn("queue ", "bookings", " paused")
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), "queue bookings paused")
}
